package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every successful write through the core publishes one
// of these so read models (caches, UIs) know to re-read.
const (
	EventSubjectCreated EventType = "subject.created"
	EventSubjectUpdated EventType = "subject.updated"
	EventSubjectDeleted EventType = "subject.deleted"

	EventAttendanceMarked EventType = "attendance.marked"
	EventAttendanceUndone EventType = "attendance.undone"
	EventAttendanceRedone EventType = "attendance.redone"

	EventScheduleChanged EventType = "schedule.changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// SubjectChangedEvent announces that a subject's counters or metadata moved.
// The counters are the committed values so subscribers can refresh caches
// without another read.
type SubjectChangedEvent struct {
	BaseEvent
	Date         string `json:"date,omitempty"`
	Status       string `json:"status,omitempty"`
	PresentCount int    `json:"present_count"`
	AbsentCount  int    `json:"absent_count"`
	TotalCount   int    `json:"total_count"`
}

// Payload implements Event interface.
func (e SubjectChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":          e.Date,
		"status":        e.Status,
		"present_count": e.PresentCount,
		"absent_count":  e.AbsentCount,
		"total_count":   e.TotalCount,
	}
}

// NewSubjectChangedEvent creates a SubjectChangedEvent.
func NewSubjectChangedEvent(eventType EventType, subjectID, date, status string, present, absent int) SubjectChangedEvent {
	return SubjectChangedEvent{
		BaseEvent:    NewBaseEvent(eventType, subjectID),
		Date:         date,
		Status:       status,
		PresentCount: present,
		AbsentCount:  absent,
		TotalCount:   present + absent,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
