package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobCreated   EventType = "job_created"
	EventJobProgress  EventType = "job_progress"
	EventJobStatus    EventType = "job_status"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventLogBatch     EventType = "log_batch"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus that feeds the
// websocket broadcaster. Delivery is at-least-once; subscribers reconcile
// via job snapshots after reconnect.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish delivers an event to all subscribers asynchronously.
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	Close() error
}
