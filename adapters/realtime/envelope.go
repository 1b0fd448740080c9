package realtime

import "encoding/json"

const (
	EventSessionConnected = "session:connected"
	EventJoin             = "join"
	EventJoined           = "joined"
	EventLeave            = "leave"
	EventError            = "error"
)

// Envelope is the frame exchanged with websocket subscribers
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomData names the room a frame refers to
type RoomData struct {
	SessionID string `json:"sessionId"`
}

// ConnectedData is the payload of a session:connected frame
type ConnectedData struct {
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
}

// NewEnvelope marshals data into an envelope for event
func NewEnvelope(event string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	return Envelope{Event: event, Data: raw}
}
