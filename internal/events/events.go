package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const eventSource = "assessment-engine"

// Attempt lifecycle event types.
const (
	AttemptStarted   = "attempt.started"
	AttemptSubmitted = "attempt.submitted"
	AttemptGraded    = "attempt.graded"
	AttemptAbandoned = "attempt.abandoned"
)

// Event is the envelope published for every lifecycle transition.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and current timestamp.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes lifecycle events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// AttemptEvent is the payload carried by attempt lifecycle events.
type AttemptEvent struct {
	AttemptID       uint     `json:"attempt_id"`
	AssessmentID    uint     `json:"assessment_id"`
	LearnerID       string   `json:"learner_id"`
	AttemptNumber   int      `json:"attempt_number"`
	Status          string   `json:"status"`
	PercentageScore *float64 `json:"percentage_score,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`
}
