package core

import "encoding/json"

// Websocket message types. Frames in both directions are JSON objects tagged by "type".
const (
	MsgConnectionEstablished  = "connection_established"
	MsgSubscribe              = "subscribe"
	MsgSubscriptionSucceeded  = "subscription_succeeded"
	MsgSubscriptionError      = "subscription_error"
	MsgSubscriptionTerminated = "subscription_terminated"
	MsgUnsubscribe            = "unsubscribe"
	MsgEvent                  = "event"
	MsgClientMessage          = "client_message"
	MsgPing                   = "ping"
	MsgPong                   = "pong"
	MsgError                  = "error"
	MsgWhoAmI                 = "whoami"
)

type Envelope struct {
	Type     string          `json:"type"`
	SocketID SocketID        `json:"socket_id,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Auth     string          `json:"auth,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
}

func (e Envelope) Encode() (Frame, error) {
	return json.Marshal(e)
}

// EventFrame wraps a bus event for delivery to a socket.
func EventFrame(ev Event) (Frame, error) {
	return Envelope{Type: MsgEvent, Channel: ev.Channel, Event: ev.Name, Data: ev.Data}.Encode()
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
