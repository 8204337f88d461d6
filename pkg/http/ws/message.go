package ws

import "encoding/json"

// MessageType constants for the session event stream.
const (
	// Server -> Client
	TypeSessionUpdate = "session_update"
	TypeResultUpdated = "result_updated"
	TypeError         = "error"
	TypePong          = "pong"

	// Client -> Server
	TypePing = "ping"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// ErrorPayload is sent with TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a Message of the given type.
func NewMessage(kind, sessionID string, payload any) (Message, error) {
	msg := Message{Type: kind, SessionID: sessionID}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = data
	return msg, nil
}
