package muc

import (
	"errors"
	"fmt"

	"mellium.im/xmpp/jid"
)

var (
	// ErrInvalidAddress is returned for malformed room addresses
	ErrInvalidAddress = errors.New("invalid room address")
	// ErrConfiguration is returned when a room's preconditions are not met,
	// e.g. joining without a nickname
	ErrConfiguration = errors.New("invalid room configuration")
	// ErrTransport matches any *TransportError
	ErrTransport = errors.New("transport error")
	// ErrProtocolMismatch describes inbound stanzas whose shape is not
	// recognized. It is logged and never returned to callers.
	ErrProtocolMismatch = errors.New("unrecognized stanza")
	// ErrNotJoined is returned when sending to a room that is not joined
	ErrNotJoined = errors.New("room not joined")
	// ErrLeaving is returned when joining while a leave is being sent
	ErrLeaving = errors.New("room leave in progress")
	// ErrJoinTimeout is reported when no self-presence arrived in time
	ErrJoinTimeout = errors.New("room join timed out")
)

// TransportError is returned when a stanza could not be written
type TransportError struct {
	Op   string
	Room jid.JID
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) hold for every TransportError
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// JoinError is reported when the service rejects a join
type JoinError struct {
	Room      jid.JID
	Condition string
	Err       error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %s rejected: %v", e.Room, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}
