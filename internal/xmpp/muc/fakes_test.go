package muc

import (
	"context"
	"encoding/xml"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meszmate/conference/internal/xmpp/packet"
	"github.com/meszmate/conference/internal/xmpp/stream"
	"mellium.im/xmpp/jid"
)

const (
	testRoom     = "room@conference.test.com"
	testNick     = "nick"
	testOccupant = testRoom + "/" + testNick
)

// fakeStream records everything written and lets tests publish inbound
// stanzas through a real bus.
type fakeStream struct {
	*stream.Bus

	mu       sync.Mutex
	sent     []interface{}
	fail     error
	delay    time.Duration
	onEncode func(v interface{})
}

func newFakeStream() *fakeStream {
	return &fakeStream{Bus: stream.NewBus()}
}

func (f *fakeStream) Encode(_ context.Context, v interface{}) error {
	f.mu.Lock()
	if d := f.delay; d > 0 {
		f.mu.Unlock()
		time.Sleep(d)
		f.mu.Lock()
	}
	if f.fail != nil {
		err := f.fail
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, v)
	hook := f.onEncode
	f.mu.Unlock()

	if hook != nil {
		hook(v)
	}
	return nil
}

func (f *fakeStream) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeStream) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeStream) xmlAt(t *testing.T, i int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sent) {
		t.Fatalf("expected at least %d stanzas, got %d", i+1, len(f.sent))
	}
	raw, err := xml.Marshal(f.sent[i])
	if err != nil {
		t.Fatalf("failed to marshal stanza %d: %v", i, err)
	}
	return string(raw)
}

type fakeTracker struct {
	mu   sync.Mutex
	reqs []packet.Request
	cbs  []packet.Callback
	err  error
}

func (f *fakeTracker) BeginIQ(_ context.Context, req packet.Request, cb packet.Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	f.cbs = append(f.cbs, cb)
	return nil
}

func (f *fakeTracker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeTracker) xmlAt(t *testing.T, i int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.reqs) {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(f.reqs))
	}
	raw, err := xml.Marshal(f.reqs[i])
	if err != nil {
		t.Fatalf("failed to marshal request %d: %v", i, err)
	}
	return string(raw)
}

// sequentialIDs returns an id generator yielding id-1, id-2, ...
func sequentialIDs() packet.IDFunc {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type harness struct {
	stream  *fakeStream
	tracker *fakeTracker
	manager *Manager
}

func newHarness(cfg ManagerConfig) *harness {
	if cfg.NewID == nil {
		cfg.NewID = sequentialIDs()
	}
	h := &harness{
		stream:  newFakeStream(),
		tracker: &fakeTracker{},
	}
	h.manager = NewManager(context.Background(), h.stream, h.tracker, cfg)
	return h
}

func (h *harness) room(t *testing.T) *Room {
	t.Helper()
	room, err := h.manager.GetRoom(mustJID(t, testOccupant))
	if err != nil {
		t.Fatalf("GetRoom returned error: %v", err)
	}
	return room
}

func mustJID(t *testing.T, s string) jid.JID {
	t.Helper()
	j, err := jid.Parse(s)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", s, err)
	}
	return j
}

func mustStanza(t *testing.T, raw string) *packet.Stanza {
	t.Helper()
	s, err := packet.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse stanza: %v", err)
	}
	return s
}

// selfPresence builds a room presence from the given occupant carrying the
// given status codes.
func selfPresence(t *testing.T, from string, codes ...string) *packet.Stanza {
	t.Helper()
	raw := fmt.Sprintf(`<presence xmlns='jabber:client' from='%s' to='me@test.com/res'>`+
		`<x xmlns='http://jabber.org/protocol/muc#user'>`+
		`<item affiliation='owner' role='moderator'/>`, from)
	for _, c := range codes {
		raw += fmt.Sprintf(`<status code='%s'/>`, c)
	}
	raw += `</x></presence>`
	return mustStanza(t, raw)
}
