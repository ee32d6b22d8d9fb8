package service

import "cytbootstrap/internal/domain"

// EventType defines the type of event
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventRunFinished    EventType = "run_finished"
)

// Event represents progress of a run
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Stage string    `json:"stage,omitempty"`
	// Result is set for EventStageCompleted
	Result *domain.StageResult `json:"result,omitempty"`
	// Report is set for EventRunFinished
	Report *domain.RunReport `json:"report,omitempty"`
}

// EventBus allows publishing and subscribing to run progress
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers. A nil bus discards events.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
