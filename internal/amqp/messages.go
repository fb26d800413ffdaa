package amqp

import (
	"encoding/json"
	"time"

	"savetrack/internal/core"
)

// EventMessage is the wire envelope for a committed event. ID is the outbox
// sequence number and is stable across redeliveries.
type EventMessage struct {
	ID        int64      `json:"id"`
	Event     core.Event `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewEventMessage wraps e for publication
func NewEventMessage(id int64, e core.Event) *EventMessage {
	return &EventMessage{
		ID:        id,
		Event:     e,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
