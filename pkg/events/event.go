package events

import "time"

// Event defines the contract for all domain events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_STARTED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	SessionStarted         = "SESSION_STARTED"
	SessionEnded           = "SESSION_ENDED"
	SessionRenamed         = "SESSION_RENAMED"
	SessionProjectChanged  = "SESSION_PROJECT_CHANGED"
	ContextStored          = "CONTEXT_STORED"
	ContextEmbeddingFailed = "CONTEXT_EMBEDDING_FAILED"
	DecisionRecorded       = "DECISION_RECORDED"
	TaskCreated            = "TASK_CREATED"
	TaskCompleted          = "TASK_COMPLETED"
	NamingRegistered       = "NAMING_REGISTERED"
	CountersReconciled     = "COUNTERS_RECONCILED"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, occurredAt time.Time, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: occurredAt}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is the wire form of an event on the bus.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func ToEnvelope(e Event) Envelope {
	return Envelope{Type: e.EventType(), OccurredAt: e.Timestamp(), Data: e.Payload()}
}

func (env Envelope) Event() BaseEvent {
	return New(env.Type, env.OccurredAt, env.Data)
}
