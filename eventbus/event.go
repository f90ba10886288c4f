// Package eventbus provides the client side of the asynchronous event bus:
// the event envelope, the SQS publisher, the subscription and response
// tables, and a Lambda handler wrapper that reports per-event outcomes.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published to the bus. Events chain through
// PreviousEventID so a workflow can be traced end to end.
type Event struct {
	EventID         string         `json:"event_id"`
	EventType       string         `json:"event_type"`
	Body            map[string]any `json:"body"`
	Created         time.Time      `json:"created"`
	PreviousEventID string         `json:"previous_event_id,omitempty"`
}

// New creates an event with a fresh id and creation timestamp.
func New(eventType string, body map[string]any) *Event {
	return &Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Body:      body,
		Created:   time.Now().UTC(),
	}
}

// Next creates a follow-up event chained to this one.
func (e *Event) Next(eventType string, body map[string]any) *Event {
	next := New(eventType, body)
	next.PreviousEventID = e.EventID
	return next
}

// ToJSON renders the event as its message body.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes an event from a message body.
func ParseEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("eventbus: parse event: %w", err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("eventbus: event has no event_type")
	}
	return &event, nil
}
