package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meszmate/conference/internal/xmpp/packet"
)

type request struct {
	id, to string
}

func (r request) StanzaID() string  { return r.id }
func (r request) Recipient() string { return r.to }

type recorder struct {
	mu   sync.Mutex
	sent []interface{}
	fail error
	hook func(v interface{})
}

func (r *recorder) Encode(_ context.Context, v interface{}) error {
	r.mu.Lock()
	if r.fail != nil {
		r.mu.Unlock()
		return r.fail
	}
	r.sent = append(r.sent, v)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(v)
	}
	return nil
}

func result(t *testing.T, raw string) *packet.Stanza {
	t.Helper()
	s, err := packet.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return s
}

func TestDeliverMatchesByID(t *testing.T) {
	conn := &recorder{}
	tr := New(conn, 0)

	calls := 0
	var got *packet.Stanza
	err := tr.BeginIQ(context.Background(), request{id: "c1", to: "room@conference.test.com"}, func(resp *packet.Stanza, err error) {
		calls++
		got = resp
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("BeginIQ returned error: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected the request to be written, got %d", len(conn.sent))
	}

	if tr.Deliver(result(t, `<iq type='result' id='other' from='room@conference.test.com'/>`)) {
		t.Fatalf("expected an unknown id not to match")
	}
	if tr.Deliver(result(t, `<iq type='result' id='c1' from='evil@test.com'/>`)) {
		t.Fatalf("expected a response from the wrong sender not to match")
	}
	if tr.Deliver(result(t, `<message id='c1' from='room@conference.test.com'/>`)) {
		t.Fatalf("expected a non-iq not to match")
	}
	if !tr.Deliver(result(t, `<iq type='result' id='c1' from='room@conference.test.com'/>`)) {
		t.Fatalf("expected the response to match")
	}
	if tr.Deliver(result(t, `<iq type='result' id='c1' from='room@conference.test.com'/>`)) {
		t.Fatalf("expected a duplicate response not to match")
	}

	if calls != 1 || got == nil || got.ID != "c1" {
		t.Fatalf("expected one callback with the response, got %d calls", calls)
	}
	if tr.Pending() != 0 {
		t.Fatalf("expected nothing pending, got %d", tr.Pending())
	}
}

func TestDeliverErrorResponse(t *testing.T) {
	tr := New(&recorder{}, 0)

	var got error
	_ = tr.BeginIQ(context.Background(), request{id: "c2", to: "room@conference.test.com"}, func(_ *packet.Stanza, err error) {
		got = err
	})
	tr.Deliver(result(t, `<iq type='error' id='c2' from='room@conference.test.com'>`+
		`<error type='auth'><forbidden xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></iq>`))

	var serr *packet.Error
	if !errors.As(got, &serr) {
		t.Fatalf("expected a stanza error, got %v", got)
	}
	if serr.Condition() != "forbidden" {
		t.Fatalf("expected forbidden, got %q", serr.Condition())
	}
}

func TestResponseDuringWrite(t *testing.T) {
	conn := &recorder{}
	tr := New(conn, 0)
	conn.hook = func(interface{}) {
		tr.Deliver(result(t, `<iq type='result' id='c3' from='room@conference.test.com'/>`))
	}

	called := false
	err := tr.BeginIQ(context.Background(), request{id: "c3", to: "room@conference.test.com"}, func(*packet.Stanza, error) {
		called = true
	})
	if err != nil {
		t.Fatalf("BeginIQ returned error: %v", err)
	}
	if !called {
		t.Fatalf("expected a response delivered during the write to match")
	}
}

func TestBeginIQWriteFailure(t *testing.T) {
	conn := &recorder{fail: errors.New("not connected")}
	tr := New(conn, 0)

	called := false
	err := tr.BeginIQ(context.Background(), request{id: "c4"}, func(*packet.Stanza, error) { called = true })
	if err == nil {
		t.Fatalf("expected the write error")
	}
	if called {
		t.Fatalf("did not expect the callback for a failed write")
	}
	if tr.Pending() != 0 {
		t.Fatalf("expected the request to be dropped, got %d pending", tr.Pending())
	}
}

func TestBeginIQRejectsDuplicateAndEmptyIDs(t *testing.T) {
	tr := New(&recorder{}, 0)
	noop := func(*packet.Stanza, error) {}

	if err := tr.BeginIQ(context.Background(), request{}, noop); err == nil {
		t.Fatalf("expected an error for an empty id")
	}
	if err := tr.BeginIQ(context.Background(), request{id: "dup"}, noop); err != nil {
		t.Fatalf("BeginIQ returned error: %v", err)
	}
	if err := tr.BeginIQ(context.Background(), request{id: "dup"}, noop); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	tr := New(&recorder{}, 10*time.Millisecond)

	errs := make(chan error, 2)
	_ = tr.BeginIQ(context.Background(), request{id: "c5"}, func(_ *packet.Stanza, err error) { errs <- err })

	select {
	case err := <-errs:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the request to time out")
	}

	if tr.Deliver(result(t, `<iq type='result' id='c5'/>`)) {
		t.Fatalf("expected a late response not to match")
	}
	select {
	case err := <-errs:
		t.Fatalf("expected exactly one callback, got a second with %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClose(t *testing.T) {
	tr := New(&recorder{}, 0)

	var got error
	_ = tr.BeginIQ(context.Background(), request{id: "c6"}, func(_ *packet.Stanza, err error) { got = err })
	tr.Close()

	if !errors.Is(got, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", got)
	}
	if err := tr.BeginIQ(context.Background(), request{id: "c7"}, func(*packet.Stanza, error) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for new requests, got %v", err)
	}
}
