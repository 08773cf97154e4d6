package eventstore

import "time"

// Event is the common interface for all stored run events.
type Event interface {
	ID() int64
	RunID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides the common event fields.
type BaseEvent struct {
	EventID        int64             `json:"id"`
	EventRunID     string            `json:"run_id"`
	EventType      string            `json:"event_type"`
	EventTimestamp time.Time         `json:"timestamp"`
	EventPayload   []byte            `json:"payload"`
	EventMetadata  map[string]string `json:"metadata,omitempty"`
}

func (e *BaseEvent) ID() int64                  { return e.EventID }
func (e *BaseEvent) RunID() string              { return e.EventRunID }
func (e *BaseEvent) Type() string               { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time       { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte            { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
