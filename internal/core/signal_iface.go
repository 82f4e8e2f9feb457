package core

import (
	"encoding/json"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// Frame is a serialized event ready for a socket.
type Frame []byte

// SignalConnection abstracts a subscriber's transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SocketID identifies one websocket connection.
type SocketID string

// Subscriber is what the hub fans out to: a socket and the identity behind it.
type Subscriber interface {
	SocketID() SocketID
	UserID() domain.UserID
	Signal() SignalConnection
}

// Bus event names.
const (
	EventAdminAction   = "admin-action"
	EventRoomSnapshot  = "room-snapshot"
	EventRoomDeleted   = "room-deleted"
	EventClientMessage = "client-message"
)

// Event is one message on a channel. ExcludeSocket suppresses the echo to the sender.
type Event struct {
	Channel       string          `json:"channel"`
	Name          string          `json:"event"`
	Data          json.RawMessage `json:"data"`
	ExcludeSocket SocketID        `json:"exclude_socket,omitempty"`
}

// NewEvent marshals data into an Event.
func NewEvent(channel, name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Channel: channel, Name: name, Data: raw}, nil
}
