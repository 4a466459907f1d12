// Package packet holds the decoded form of inbound stanzas that the MUC
// session layer inspects, plus stanza id generation.
package packet

import (
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
	"mellium.im/xmpp/form"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
)

// Stanza kinds
const (
	KindPresence = "presence"
	KindMessage  = "message"
	KindIQ       = "iq"
)

// NSStanzas is the namespace of defined stanza error conditions
const NSStanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"

// Stanza is a top level stanza read from the stream. Only the children the
// session layer cares about are decoded; everything else is skipped.
type Stanza struct {
	XMLName xml.Name
	ID      string `xml:"id,attr,omitempty"`
	From    string `xml:"from,attr,omitempty"`
	To      string `xml:"to,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`

	Status string    `xml:"status,omitempty"`
	Body   string    `xml:"body,omitempty"`
	User   *MUCUser  `xml:"http://jabber.org/protocol/muc#user x"`
	Owner  *MUCOwner `xml:"http://jabber.org/protocol/muc#owner query"`
	Error  *Error    `xml:"error"`
}

// MUCUser is the muc#user payload carried on room presences and messages
type MUCUser struct {
	Items  []MUCItem   `xml:"item"`
	Status []MUCStatus `xml:"status"`
}

// MUCItem describes an occupant's affiliation and role
type MUCItem struct {
	Affiliation string `xml:"affiliation,attr,omitempty"`
	Role        string `xml:"role,attr,omitempty"`
	JID         string `xml:"jid,attr,omitempty"`
	Nick        string `xml:"nick,attr,omitempty"`
}

// MUCStatus is a single status code element. The code is kept as text so a
// malformed value does not fail decoding of the whole stanza.
type MUCStatus struct {
	Code string `xml:"code,attr"`
}

// MUCOwner is the muc#owner query returned by a configuration request
type MUCOwner struct {
	Form *form.Data `xml:"jabber:x:data x"`
}

// Error is a stanza level error
type Error struct {
	Type     string `xml:"type,attr,omitempty"`
	Text     string `xml:"urn:ietf:params:xml:ns:xmpp-stanzas text"`
	Children []struct {
		XMLName xml.Name
	} `xml:",any"`
}

// Condition returns the defined condition of the error, e.g. "conflict"
func (e *Error) Condition() string {
	for _, c := range e.Children {
		if c.XMLName.Space == NSStanzas && c.XMLName.Local != "text" {
			return c.XMLName.Local
		}
	}
	return "undefined-condition"
}

// Error satisfies the error interface
func (e *Error) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s (%s): %s", e.Condition(), e.Type, e.Text)
	}
	return fmt.Sprintf("%s (%s)", e.Condition(), e.Type)
}

// Kind returns the local name of the stanza element
func (s *Stanza) Kind() string {
	return s.XMLName.Local
}

// FromJID parses the sender address
func (s *Stanza) FromJID() (jid.JID, error) {
	return jid.Parse(s.From)
}

// IsMUCUser reports whether the stanza carries a muc#user payload
func (s *Stanza) IsMUCUser() bool {
	return s.User != nil
}

// StatusCodes returns the raw muc#user status codes, in document order
func (s *Stanza) StatusCodes() []string {
	if s.User == nil {
		return nil
	}
	codes := make([]string, 0, len(s.User.Status))
	for _, st := range s.User.Status {
		codes = append(codes, st.Code)
	}
	return codes
}

// Parse decodes a single stanza from raw XML
func Parse(raw []byte) (*Stanza, error) {
	var s Stanza
	if err := xml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode stanza: %w", err)
	}
	return &s, nil
}

// Decode decodes the stanza whose start element has already been consumed
func Decode(d *xml.Decoder, start *xml.StartElement) (*Stanza, error) {
	var s Stanza
	if err := d.DecodeElement(&s, start); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", start.Name.Local, err)
	}
	return &s, nil
}

// IDFunc generates stanza ids
type IDFunc func() string

// NewID returns a fresh, random stanza id
func NewID() string {
	return uuid.NewString()
}

// Namespaces re-exported for callers that build MUC payloads
const (
	NSMUC      = muc.NS
	NSMUCUser  = muc.NSUser
	NSMUCOwner = muc.NSOwner
	NSData     = "jabber:x:data"
)

// Request is an outgoing stanza whose response is correlated by id
type Request interface {
	StanzaID() string
	Recipient() string
}

// Callback receives the response to a Request. It is called exactly once,
// either with the response stanza or with a non-nil error.
type Callback func(resp *Stanza, err error)
