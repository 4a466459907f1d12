package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/meszmate/conference/internal/xmpp/packet"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{JID: "me@test.com", Resource: "conference"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	c := newTestClient(t)
	if c.JID().String() != "me@test.com/conference" {
		t.Fatalf("unexpected JID %s", c.JID())
	}
	if c.port != 5222 {
		t.Fatalf("expected default port 5222, got %d", c.port)
	}
	if c.IsConnected() {
		t.Fatalf("did not expect a new client to be connected")
	}

	if _, err := NewClient(ClientConfig{JID: "@@"}); err == nil {
		t.Fatalf("expected an error for an invalid JID")
	}
}

func TestEncodeWithoutSession(t *testing.T) {
	c := newTestClient(t)
	if err := c.Encode(context.Background(), struct{}{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

type request struct{ id, to string }

func (r request) StanzaID() string  { return r.id }
func (r request) Recipient() string { return r.to }

func TestDispatchRoutesResponsesToTracker(t *testing.T) {
	c := newTestClient(t)

	var published []string
	c.Subscribe(func(s *packet.Stanza) { published = append(published, s.ID) })

	// no session: the write fails and nothing stays pending
	if err := c.Tracker().BeginIQ(context.Background(), request{id: "q1"}, func(*packet.Stanza, error) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	c.Dispatch(&packet.Stanza{XMLName: xml.Name{Local: "iq"}, Type: "result", ID: "q1"})
	c.Dispatch(&packet.Stanza{XMLName: xml.Name{Local: "presence"}, ID: "p1"})

	if len(published) != 2 || published[0] != "q1" || published[1] != "p1" {
		t.Fatalf("expected unmatched stanzas to be published in order, got %v", published)
	}
}

func TestHandleElementDecodesStanza(t *testing.T) {
	c := newTestClient(t)

	var got *packet.Stanza
	h := c.Subscribe(func(s *packet.Stanza) { got = s })
	defer c.Unsubscribe(h)

	raw := `<presence xmlns='jabber:client' from='room@conference.test.com/nick'>` +
		`<x xmlns='http://jabber.org/protocol/muc#user'><status code='110'/></x></presence>`
	d := xml.NewDecoder(strings.NewReader(raw))
	tok, err := d.Token()
	if err != nil {
		t.Fatalf("failed to read start: %v", err)
	}
	start := tok.(xml.StartElement)

	c.handleElement(d, &start)

	if got == nil {
		t.Fatalf("expected the stanza to be published")
	}
	if got.From != "room@conference.test.com/nick" {
		t.Fatalf("unexpected from %q", got.From)
	}
	if codes := got.StatusCodes(); len(codes) != 1 || codes[0] != "110" {
		t.Fatalf("expected status 110, got %v", codes)
	}
}
