// Package muc manages multi-user chat room memberships over a shared XMPP
// connection: one state machine per room, and a registry that owns them.
package muc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/xmpp/packet"
	"mellium.im/xmpp/jid"
)

// ManagerConfig holds the defaults applied to rooms a Manager creates
type ManagerConfig struct {
	// Nick is used when the requested address carries no resourcepart
	Nick string
	// AcceptDefaultConfig is the initial configuration policy of new rooms
	AcceptDefaultConfig bool
	// JoinTimeout is the initial join timeout of new rooms; zero disables it
	JoinTimeout time.Duration
	// NewID generates stanza ids; defaults to packet.NewID
	NewID packet.IDFunc
}

// Manager is the registry of rooms on one connection. There is at most one
// Room per bare room address.
type Manager struct {
	ctx     context.Context
	stream  Stream
	tracker Tracker
	cfg     ManagerConfig

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewManager creates a manager whose rooms share s and t
func NewManager(ctx context.Context, s Stream, t Tracker, cfg ManagerConfig) *Manager {
	return &Manager{
		ctx:     ctx,
		stream:  s,
		tracker: t,
		cfg:     cfg,
		rooms:   make(map[string]*Room),
	}
}

// ParseRoom parses a room address, wrapping failures in ErrInvalidAddress
func ParseRoom(s string) (jid.JID, error) {
	j, err := jid.Parse(s)
	if err != nil {
		return jid.JID{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if err := validateRoom(j); err != nil {
		return jid.JID{}, err
	}
	return j, nil
}

func validateRoom(j jid.JID) error {
	if j.Domainpart() == "" || j.Localpart() == "" {
		return fmt.Errorf("%w: %q is not a room address", ErrInvalidAddress, j.String())
	}
	return nil
}

// GetRoom returns the room for addr's bare address, creating and
// registering it on first use. A resourcepart on addr becomes the new room's
// nickname.
func (m *Manager) GetRoom(addr jid.JID) (*Room, error) {
	if err := validateRoom(addr); err != nil {
		return nil, err
	}
	key := addr.Bare().String()

	m.mu.RLock()
	room, ok := m.rooms[key]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[key]; ok {
		return room, nil
	}

	nick := addr.Resourcepart()
	if nick == "" {
		nick = m.cfg.Nick
	}
	room = newRoom(m.ctx, addr, nick, m.stream, m.tracker, m.cfg)
	m.rooms[key] = room
	logging.Debug("muc: registered %s", key)
	return room, nil
}

// HasRoom reports whether a room is registered for addr's bare address
func (m *Manager) HasRoom(addr jid.JID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[addr.Bare().String()]
	return ok
}

// RemoveRoom unregisters the room for addr. A room that is not unjoined only
// drops its inbound subscription; no leave presence is sent, so call Leave
// first for a visible departure. Removing an unknown room is a no-op.
func (m *Manager) RemoveRoom(addr jid.JID) {
	key := addr.Bare().String()

	m.mu.Lock()
	room, ok := m.rooms[key]
	if ok {
		delete(m.rooms, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	room.detach()
	logging.Debug("muc: removed %s", key)
}

// Rooms returns a snapshot of the registered rooms
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// JoinedRooms returns the rooms whose join has been confirmed
func (m *Manager) JoinedRooms() []*Room {
	var rooms []*Room
	for _, room := range m.Rooms() {
		if room.State() == StateJoined {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// Reset returns every registered room to Unjoined and drops its
// subscription. Rooms stay registered and can be joined again; call it when
// the connection is lost.
func (m *Manager) Reset() {
	for _, room := range m.Rooms() {
		room.reset()
	}
}

// Close removes every room without sending leave presences
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, room := range rooms {
		room.detach()
	}
}
