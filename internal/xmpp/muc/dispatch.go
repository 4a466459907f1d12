package muc

import (
	"errors"

	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/xmpp/packet"
	"github.com/meszmate/conference/internal/xmpp/stream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// bind returns the handler a room registers with the stream. It drops every
// stanza whose sender is not in the room.
func (r *Room) bind() stream.Handler {
	room := r.jid
	return func(s *packet.Stanza) {
		from, err := s.FromJID()
		if err != nil || !from.Bare().Equal(room) {
			return
		}
		r.handleStanza(s, from)
	}
}

// handleStanza is called on the stream's delivery goroutine for every stanza
// from the room. Errors never leave this function.
func (r *Room) handleStanza(s *packet.Stanza, from jid.JID) {
	switch s.Kind() {
	case packet.KindPresence:
		r.handlePresence(s, from)
	case packet.KindMessage:
		r.mu.Lock()
		handler := r.onMessage
		r.mu.Unlock()
		if handler != nil {
			handler(r, s)
		}
	}
}

func (r *Room) handlePresence(s *packet.Stanza, from jid.JID) {
	switch stanza.PresenceType(s.Type) {
	case stanza.ErrorPresence:
		r.handleJoinError(s, from)
	case stanza.UnavailablePresence:
		r.handleDeparture(s, from)
	case stanza.AvailablePresence:
		r.handleSelfPresence(s, from)
	}
}

// isSelfLocked reports whether a presence from the given address carrying status
// is our own. A service that rewrote our nickname signals it with 210.
func (r *Room) isSelfLocked(from jid.JID, status StatusSet) bool {
	if !status.Has(StatusSelfPresence) {
		return false
	}
	if occupant, err := r.occupantLocked(); err == nil && from.Equal(occupant) {
		return true
	}
	return status.Has(StatusNickAssigned)
}

func (r *Room) handleSelfPresence(s *packet.Stanza, from jid.JID) {
	status, err := DecodeStatus(s)
	if err != nil {
		if errors.Is(err, ErrProtocolMismatch) {
			logging.Debug("muc: ignoring presence from %s: %v", from, err)
		}
		return
	}

	r.mu.Lock()
	if !r.isSelfLocked(from, status) {
		r.mu.Unlock()
		return
	}
	if r.state != StateJoining {
		r.mu.Unlock()
		logging.Debug("muc: duplicate self-presence from %s while %s", from, r.state)
		return
	}

	if status.Has(StatusNickAssigned) {
		r.nick = from.Resourcepart()
	}
	r.state = StateJoined
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	created := status.Has(StatusRoomCreated)
	accept := r.acceptDefaults
	onJoined := r.onJoined
	onConfig := r.onConfig
	r.mu.Unlock()

	logging.Info("muc: joined %s (created=%t)", from, created)

	if created {
		r.configure(accept, onConfig)
	}
	if onJoined != nil {
		onJoined(r, created)
	}
}

func (r *Room) handleJoinError(s *packet.Stanza, from jid.JID) {
	r.mu.Lock()
	occupant, err := r.occupantLocked()
	if err != nil || !from.Equal(occupant) || r.state != StateJoining {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	handler := r.onJoinError
	r.mu.Unlock()

	jerr := &JoinError{Room: r.jid, Condition: "undefined-condition", Err: ErrProtocolMismatch}
	if s.Error != nil {
		jerr.Condition = s.Error.Condition()
		jerr.Err = s.Error
	}
	logging.Warn("muc: %v", jerr)
	if handler != nil {
		handler(r, jerr)
	}
}

func (r *Room) handleDeparture(s *packet.Stanza, from jid.JID) {
	status, err := DecodeStatus(s)
	if err != nil {
		return
	}

	r.mu.Lock()
	if !r.isSelfLocked(from, status) || r.state != StateJoined {
		r.mu.Unlock()
		return
	}
	if status.Has(StatusNickChanged) {
		// 303 is followed by an available presence under the new nickname;
		// we are still in the room.
		if nick := itemNick(s); nick != "" {
			r.nick = nick
		}
		current := r.nick
		r.mu.Unlock()
		logging.Info("muc: nickname in %s changed to %s", r.jid, current)
		return
	}
	r.resetLocked()
	handler := r.onDeparted
	r.mu.Unlock()

	logging.Info("muc: removed from %s (status %v)", r.jid, status.Codes())
	if handler != nil {
		handler(r, status)
	}
}

func itemNick(s *packet.Stanza) string {
	if s.User == nil {
		return ""
	}
	for _, item := range s.User.Items {
		if item.Nick != "" {
			return item.Nick
		}
	}
	return ""
}
