package muc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/xmpp/packet"
	"github.com/meszmate/conference/internal/xmpp/stream"
	"mellium.im/xmpp/form"
	"mellium.im/xmpp/jid"
)

// Stream is the connection a room writes to and reads from
type Stream interface {
	Encode(ctx context.Context, v interface{}) error
	Subscribe(h stream.Handler) stream.Handle
	Unsubscribe(h stream.Handle)
}

// Tracker correlates configuration requests with their responses
type Tracker interface {
	BeginIQ(ctx context.Context, req packet.Request, cb packet.Callback) error
}

// State is a room's membership state
type State int

const (
	StateUnjoined State = iota
	StateJoining
	StateJoined
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConfigResult is the outcome of the configuration exchange that follows
// creating a room.
type ConfigResult struct {
	Room jid.JID
	// AcceptedDefaults is true when the defaults were submitted, false when
	// the current form was requested.
	AcceptedDefaults bool
	// Form is the returned configuration form, if one was requested
	Form *form.Data
	Err  error
}

// Room is one membership session in a multi-user chat room
type Room struct {
	mu sync.Mutex

	jid            jid.JID
	nick           string
	password       string
	acceptDefaults bool
	joinTimeout    time.Duration

	state    State
	sub      stream.Handle
	joinGen  uint64
	timer    *time.Timer
	deadline time.Time
	detached bool

	ctx     context.Context
	stream  Stream
	tracker Tracker
	newID   packet.IDFunc

	onJoined    func(r *Room, created bool)
	onJoinError func(r *Room, err error)
	onDeparted  func(r *Room, status StatusSet)
	onConfig    func(res ConfigResult)
	onMessage   func(r *Room, s *packet.Stanza)
}

func newRoom(ctx context.Context, addr jid.JID, nick string, s Stream, t Tracker, cfg ManagerConfig) *Room {
	newID := cfg.NewID
	if newID == nil {
		newID = packet.NewID
	}
	return &Room{
		jid:            addr.Bare(),
		nick:           nick,
		acceptDefaults: cfg.AcceptDefaultConfig,
		joinTimeout:    cfg.JoinTimeout,
		ctx:            ctx,
		stream:         s,
		tracker:        t,
		newID:          newID,
	}
}

// JID returns the room's bare address
func (r *Room) JID() jid.JID {
	return r.jid
}

// State returns the current membership state
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribed reports whether the room holds an inbound subscription
func (r *Room) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != 0
}

// Nick returns the nickname used in the room
func (r *Room) Nick() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nick
}

// SetNick sets the nickname. It can only be changed while unjoined.
func (r *Room) SetNick(nick string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateUnjoined {
		return fmt.Errorf("%w: cannot change nickname while %s", ErrConfiguration, r.state)
	}
	r.nick = nick
	return nil
}

// SetPassword sets the password sent with the join presence
func (r *Room) SetPassword(password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.password = password
}

// DefaultConfig reports whether a newly created room accepts the service
// defaults (true) or requests the current form (false).
func (r *Room) DefaultConfig() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acceptDefaults
}

// SetDefaultConfig sets the configuration policy
func (r *Room) SetDefaultConfig(accept bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acceptDefaults = accept
}

func (r *Room) occupantLocked() (jid.JID, error) {
	return r.occupantFor(r.nick)
}

func (r *Room) occupantFor(nick string) (jid.JID, error) {
	if nick == "" {
		return jid.JID{}, fmt.Errorf("%w: no nickname set for %s", ErrConfiguration, r.jid)
	}
	occupant, err := r.jid.WithResource(nick)
	if err != nil {
		return jid.JID{}, fmt.Errorf("%w: nickname %q: %v", ErrConfiguration, nick, err)
	}
	return occupant, nil
}

// Join sends the join presence and starts listening for the room's
// stanzas. Joining a room that is already joining or joined is a no-op.
func (r *Room) Join() error {
	r.mu.Lock()
	switch {
	case r.detached:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s was removed from its manager", ErrConfiguration, r.jid)
	case r.state == StateJoining || r.state == StateJoined:
		r.mu.Unlock()
		return nil
	case r.state == StateLeaving:
		r.mu.Unlock()
		return ErrLeaving
	}

	occupant, err := r.occupantLocked()
	if err != nil {
		r.mu.Unlock()
		return err
	}

	r.state = StateJoining
	r.joinGen++
	gen := r.joinGen
	// Subscribe before writing so a confirmation that arrives during the
	// write is not lost.
	r.sub = r.stream.Subscribe(r.bind())
	pres := JoinPresence(occupant, r.password)
	r.mu.Unlock()

	logging.Debug("muc: joining %s", occupant)

	if err := r.stream.Encode(r.ctx, pres); err != nil {
		r.mu.Lock()
		if r.joinGen == gen {
			r.resetLocked()
		}
		r.mu.Unlock()
		logging.Warn("muc: join %s failed: %v", occupant, err)
		return &TransportError{Op: "join", Room: r.jid, Err: err}
	}

	r.armJoinTimeout(gen)
	return nil
}

// Leave sends an unavailable presence and stops listening for the room's
// stanzas without waiting for the service to confirm. If the write fails
// the state is left unchanged.
func (r *Room) Leave(reason string) error {
	r.mu.Lock()
	if r.state == StateLeaving {
		r.mu.Unlock()
		return ErrLeaving
	}
	occupant, err := r.occupantLocked()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	prev := r.state
	gen := r.joinGen
	if prev != StateUnjoined {
		r.state = StateLeaving
	}
	r.mu.Unlock()

	logging.Debug("muc: leaving %s (%s)", occupant, prev)

	if err := r.stream.Encode(r.ctx, LeavePresence(occupant, reason)); err != nil {
		r.mu.Lock()
		if r.state == StateLeaving {
			r.state = prev
		}
		r.mu.Unlock()
		if prev == StateJoining {
			// The join timer may have fired while we were Leaving.
			r.resumeJoinTimeout(gen)
		}
		logging.Warn("muc: leave %s failed: %v", occupant, err)
		return &TransportError{Op: "leave", Room: r.jid, Err: err}
	}

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	return nil
}

// PublicMessage sends body to every occupant and returns the message id
func (r *Room) PublicMessage(body string) (string, error) {
	if err := r.requireActive(); err != nil {
		return "", err
	}
	id := r.newID()
	if err := r.stream.Encode(r.ctx, GroupChatMessage(r.jid, id, body)); err != nil {
		return "", &TransportError{Op: "message", Room: r.jid, Err: err}
	}
	return id, nil
}

// PrivateMessage sends body to the occupant nick and returns the message id
func (r *Room) PrivateMessage(nick, body string) (string, error) {
	if err := r.requireActive(); err != nil {
		return "", err
	}
	to, err := r.jid.WithResource(nick)
	if err != nil {
		return "", fmt.Errorf("%w: nickname %q: %v", ErrInvalidAddress, nick, err)
	}
	id := r.newID()
	if err := r.stream.Encode(r.ctx, PrivateMessage(to, id, body)); err != nil {
		return "", &TransportError{Op: "private message", Room: r.jid, Err: err}
	}
	return id, nil
}

func (r *Room) requireActive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateJoining && r.state != StateJoined {
		return fmt.Errorf("%w: %s is %s", ErrNotJoined, r.jid, r.state)
	}
	return nil
}

// OnJoined sets the handler called when the service confirms the join
func (r *Room) OnJoined(handler func(r *Room, created bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoined = handler
}

// OnJoinError sets the handler called when a join is rejected or times out
func (r *Room) OnJoinError(handler func(r *Room, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoinError = handler
}

// OnDeparted sets the handler called when the service removes us from the
// room, e.g. after a kick, a ban or the room being destroyed.
func (r *Room) OnDeparted(handler func(r *Room, status StatusSet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeparted = handler
}

// OnConfig sets the handler receiving the configuration exchange result
func (r *Room) OnConfig(handler func(res ConfigResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConfig = handler
}

// OnMessage sets the handler for messages from the room and its occupants
func (r *Room) OnMessage(handler func(r *Room, s *packet.Stanza)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMessage = handler
}

func (r *Room) armJoinTimeout(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joinTimeout <= 0 || r.state != StateJoining || r.joinGen != gen {
		return
	}
	r.deadline = time.Now().Add(r.joinTimeout)
	r.timer = time.AfterFunc(r.joinTimeout, func() { r.joinExpired(gen) })
}

// resumeJoinTimeout re-arms the join timer for what is left of the original
// deadline, expiring the join at once if the deadline has passed.
func (r *Room) resumeJoinTimeout(gen uint64) {
	r.mu.Lock()
	if r.deadline.IsZero() || r.state != StateJoining || r.joinGen != gen {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	remaining := time.Until(r.deadline)
	if remaining > 0 {
		r.timer = time.AfterFunc(remaining, func() { r.joinExpired(gen) })
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()
	r.joinExpired(gen)
}

func (r *Room) joinExpired(gen uint64) {
	r.mu.Lock()
	if r.state != StateJoining || r.joinGen != gen {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	handler := r.onJoinError
	r.mu.Unlock()

	logging.Warn("muc: no self-presence from %s, giving up", r.jid)
	if handler != nil {
		handler(r, ErrJoinTimeout)
	}
}

// resetLocked returns the room to Unjoined and drops its subscription
func (r *Room) resetLocked() {
	if r.sub != 0 {
		r.stream.Unsubscribe(r.sub)
		r.sub = 0
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.deadline = time.Time{}
	r.state = StateUnjoined
}

// reset returns the room to Unjoined after the connection was lost. Unlike
// detach the room can be joined again.
func (r *Room) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// detach drops the subscription without telling the service
func (r *Room) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.resetLocked()
}

// configure starts the configuration exchange for a newly created room. The
// callback only captures what it reports, so it stays valid after the room
// is removed.
func (r *Room) configure(accept bool, handler func(ConfigResult)) {
	if r.tracker == nil {
		logging.Warn("muc: %s was created but no tracker is available to configure it", r.jid)
		return
	}

	room := r.jid
	id := r.newID()
	var iq *IQ
	if accept {
		iq = ConfigDefaultsIQ(room, id)
	} else {
		iq = ConfigRequestIQ(room, id)
	}

	err := r.tracker.BeginIQ(r.ctx, iq, func(resp *packet.Stanza, err error) {
		res := ConfigResult{Room: room, AcceptedDefaults: accept, Err: err}
		if err == nil && resp != nil && resp.Owner != nil {
			res.Form = resp.Owner.Form
		}
		if err != nil {
			logging.Warn("muc: configuring %s failed: %v", room, err)
		} else {
			logging.Debug("muc: %s configured (defaults=%t)", room, accept)
		}
		if handler != nil {
			handler(res)
		}
	})
	if err != nil {
		logging.Warn("muc: could not send configuration request to %s: %v", room, err)
		if handler != nil {
			handler(ConfigResult{Room: room, AcceptedDefaults: accept, Err: &TransportError{Op: "configure", Room: room, Err: err}})
		}
	}
}
