// Package events defines the outbound notification surface of the scheduler
// core. Publishing is fire-and-forget: failures are logged and swallowed and
// must never affect persistence.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names an event type on the wire.
type Kind string

const (
	JobCreated         Kind = "job.created"
	JobUpdated         Kind = "job.updated"
	JobDeleted         Kind = "job.deleted"
	ExecutionStarted   Kind = "execution.started"
	ExecutionCompleted Kind = "execution.completed"
	ScheduleChanged    Kind = "schedule.changed"
)

// Event is the payload delivered to subscribers and external channels.
type Event struct {
	Kind          Kind      `json:"kind"`
	JobID         uuid.UUID `json:"jobId"`
	JobName       string    `json:"jobName"`
	Status        string    `json:"status,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	OldExpression string    `json:"oldExpression,omitempty"`
	NewExpression string    `json:"newExpression,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher delivers events best-effort. Implementations must not block the
// caller for long and must never return delivery problems to it.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Multi fans one event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) {
	for _, p := range m {
		p.Publish(ctx, event)
	}
}

// Nop discards all events. Useful in tests and the validate/migrate commands.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
