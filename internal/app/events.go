package app

import (
	"github.com/meszmate/conference/internal/xmpp/muc"
)

// EventType represents the type of event
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventError
	EventMUCJoined
	EventMUCJoinFailed
	EventMUCLeft
	EventMUCConfigured
	EventMUCMessage
	EventRoomList
	EventHelp
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventMUCJoined:
		return "joined"
	case EventMUCJoinFailed:
		return "join-failed"
	case EventMUCLeft:
		return "left"
	case EventMUCConfigured:
		return "configured"
	case EventMUCMessage:
		return "message"
	case EventRoomList:
		return "rooms"
	case EventHelp:
		return "help"
	default:
		return "unknown"
	}
}

// EventMsg represents an event from the app layer
type EventMsg struct {
	Type EventType
	Data interface{}
}

// RoomEvent describes a membership change of a room
type RoomEvent struct {
	Room    string
	Nick    string
	Created bool
	Status  []muc.StatusCode
	Err     error
}

// ConfigEvent describes the outcome of configuring a new room
type ConfigEvent struct {
	Room             string
	AcceptedDefaults bool
	FormReceived     bool
	Err              error
}

// RoomMessage is a message received from a room or one of its occupants
type RoomMessage struct {
	ID      string
	Room    string
	From    string
	Body    string
	Private bool
}
