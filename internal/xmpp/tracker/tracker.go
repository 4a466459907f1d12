// Package tracker correlates outgoing IQ requests with their responses.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/xmpp/packet"
)

var (
	// ErrTimeout is passed to a callback when no response arrived in time
	ErrTimeout = errors.New("iq request timed out")
	// ErrClosed is returned for requests on, or pending at, a closed tracker
	ErrClosed = errors.New("tracker closed")
	// ErrDuplicateID is returned when a request reuses a pending id
	ErrDuplicateID = errors.New("duplicate pending request id")
)

// Encoder writes a stanza to the connection
type Encoder interface {
	Encode(ctx context.Context, v interface{}) error
}

type pending struct {
	to    string
	cb    packet.Callback
	timer *time.Timer
}

// Tracker matches result and error IQs to pending requests by id
type Tracker struct {
	mu      sync.Mutex
	conn    Encoder
	timeout time.Duration
	pending map[string]*pending
	closed  bool
}

// New creates a tracker writing requests to conn. A zero timeout disables
// request expiry.
func New(conn Encoder, timeout time.Duration) *Tracker {
	return &Tracker{
		conn:    conn,
		timeout: timeout,
		pending: make(map[string]*pending),
	}
}

// BeginIQ registers cb for the response to req and sends req. The request is
// registered before it is written so that a response delivered while the
// write is still in progress is matched.
func (t *Tracker) BeginIQ(ctx context.Context, req packet.Request, cb packet.Callback) error {
	id := req.StanzaID()
	if id == "" {
		return fmt.Errorf("request has no id")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if _, ok := t.pending[id]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	p := &pending{to: req.Recipient(), cb: cb}
	if t.timeout > 0 {
		p.timer = time.AfterFunc(t.timeout, func() { t.expire(id, p) })
	}
	t.pending[id] = p
	t.mu.Unlock()

	if err := t.conn.Encode(ctx, req); err != nil {
		t.take(id, p)
		return err
	}
	logging.Debug("iq %s sent to %s", id, p.to)
	return nil
}

// Deliver hands an inbound stanza to the tracker. It reports whether the
// stanza was the response to a pending request.
func (t *Tracker) Deliver(s *packet.Stanza) bool {
	if s.Kind() != packet.KindIQ || (s.Type != "result" && s.Type != "error") {
		return false
	}

	t.mu.Lock()
	p, ok := t.pending[s.ID]
	if !ok || (p.to != "" && s.From != "" && s.From != p.to) {
		t.mu.Unlock()
		return false
	}
	delete(t.pending, s.ID)
	t.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}

	if s.Type == "error" {
		if s.Error != nil {
			p.cb(s, s.Error)
		} else {
			p.cb(s, fmt.Errorf("iq %s failed without error payload", s.ID))
		}
		return true
	}
	p.cb(s, nil)
	return true
}

// Pending returns the number of outstanding requests
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close fails all outstanding requests with ErrClosed and rejects new ones
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	all := t.pending
	t.pending = make(map[string]*pending)
	t.mu.Unlock()

	for _, p := range all {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.cb(nil, ErrClosed)
	}
}

func (t *Tracker) expire(id string, p *pending) {
	if !t.take(id, p) {
		return
	}
	logging.Warn("iq %s to %s timed out", id, p.to)
	p.cb(nil, ErrTimeout)
}

// take removes the entry for id if it is still p
func (t *Tracker) take(id string, p *pending) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.pending[id]; !ok || cur != p {
		return false
	}
	delete(t.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}
