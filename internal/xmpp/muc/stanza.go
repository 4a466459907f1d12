package muc

import (
	"encoding/xml"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Presence is an outgoing room presence
type Presence struct {
	XMLName xml.Name            `xml:"presence"`
	To      string              `xml:"to,attr"`
	Type    stanza.PresenceType `xml:"type,attr,omitempty"`
	Status  string              `xml:"status,omitempty"`
	X       *JoinPayload        `xml:"http://jabber.org/protocol/muc x"`
}

// JoinPayload marks a presence as a MUC join
type JoinPayload struct {
	Password string `xml:"password,omitempty"`
}

// Message is an outgoing room message
type Message struct {
	XMLName xml.Name           `xml:"message"`
	ID      string             `xml:"id,attr"`
	To      string             `xml:"to,attr"`
	Type    stanza.MessageType `xml:"type,attr"`
	Body    string             `xml:"body"`
}

// IQ is an outgoing room owner request
type IQ struct {
	XMLName xml.Name      `xml:"iq"`
	ID      string        `xml:"id,attr"`
	To      string        `xml:"to,attr"`
	Type    stanza.IQType `xml:"type,attr"`
	Query   OwnerQuery    `xml:"http://jabber.org/protocol/muc#owner query"`
}

// OwnerQuery is the muc#owner query payload
type OwnerQuery struct {
	Form *SubmitForm `xml:"jabber:x:data x"`
}

// SubmitForm is a data form submission without fields
type SubmitForm struct {
	Type string `xml:"type,attr"`
}

// StanzaID satisfies packet.Request
func (iq *IQ) StanzaID() string {
	return iq.ID
}

// Recipient satisfies packet.Request
func (iq *IQ) Recipient() string {
	return iq.To
}

// JoinPresence builds the presence that joins occupant's room as
// occupant's resourcepart.
func JoinPresence(occupant jid.JID, password string) *Presence {
	return &Presence{
		To: occupant.String(),
		X:  &JoinPayload{Password: password},
	}
}

// LeavePresence builds the unavailable presence that leaves a room. An empty
// reason omits the status element.
func LeavePresence(occupant jid.JID, reason string) *Presence {
	return &Presence{
		To:     occupant.String(),
		Type:   stanza.UnavailablePresence,
		Status: reason,
	}
}

// GroupChatMessage builds a message to every occupant of room
func GroupChatMessage(room jid.JID, id, body string) *Message {
	return &Message{
		ID:   id,
		To:   room.Bare().String(),
		Type: stanza.GroupChatMessage,
		Body: body,
	}
}

// PrivateMessage builds a message to a single occupant
func PrivateMessage(occupant jid.JID, id, body string) *Message {
	return &Message{
		ID:   id,
		To:   occupant.String(),
		Type: stanza.ChatMessage,
		Body: body,
	}
}

// ConfigRequestIQ asks for the room's current configuration form
func ConfigRequestIQ(room jid.JID, id string) *IQ {
	return &IQ{
		ID:   id,
		To:   room.Bare().String(),
		Type: stanza.GetIQ,
	}
}

// ConfigDefaultsIQ accepts the service's default configuration for a newly
// created room.
func ConfigDefaultsIQ(room jid.JID, id string) *IQ {
	return &IQ{
		ID:    id,
		To:    room.Bare().String(),
		Type:  stanza.SetIQ,
		Query: OwnerQuery{Form: &SubmitForm{Type: "submit"}},
	}
}
