package ws

import (
	"encoding/json"
	"time"
)

// Message is the envelope pushed to UI websocket clients.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Event types broadcast during inventory polling.
const (
	MessageTypeInventoryStart  = "inventory_start"
	MessageTypeInventoryUpdate = "inventory_update"
	MessageTypeError           = "error"
	MessageTypePong            = "pong"
)

// NewMessage returns a Message stamped with the current time.
func NewMessage(msgType string, data map[string]interface{}) Message {
	return Message{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
}

// Marshal marshals the message to JSON bytes, stamping it if needed.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return json.Marshal(m)
}
