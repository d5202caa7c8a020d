// Package store defines the persistent data model for scheduled jobs and the
// narrow interface the scheduler core uses to read and write it.
//
// Two implementations exist: pg (managed mode, Postgres) and sqlite
// (standalone mode, single-file database). The scheduler core never touches
// SQL directly.
package store

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status derived from the last completed firing.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// ExecutionStatus is the state of a single firing.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// Job is the scheduled unit: a cron expression plus the HTTP envelope to fire.
type Job struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description,omitempty" db:"description"`
	Expression  string            `json:"expression" db:"expression"`
	Timezone    string            `json:"timezone" db:"timezone"`
	URL         string            `json:"url" db:"url"`
	Method      string            `json:"method" db:"method"`
	Headers     map[string]string `json:"headers,omitempty" db:"-"`
	Query       map[string]string `json:"query,omitempty" db:"-"`
	Body        *string           `json:"body,omitempty" db:"body"`
	Enabled     bool              `json:"enabled" db:"enabled"`

	// RetryBudget is the total number of HTTP attempts per firing (1..10).
	RetryBudget int `json:"retryBudget" db:"retry_budget"`

	// AttemptTimeout is the per-attempt HTTP deadline (1s..5m).
	AttemptTimeout time.Duration `json:"attemptTimeout" db:"-"`

	OwnerID     string     `json:"ownerId" db:"owner_id"`
	Status      JobStatus  `json:"status" db:"status"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty" db:"last_fired_at"`
	NextFireAt  *time.Time `json:"nextFireAt,omitempty" db:"next_fire_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Execution records one firing of a job. Created by the execution driver at
// firing time; nothing else mutates it.
type Execution struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	JobID          uuid.UUID       `json:"jobId" db:"job_id"`
	StartedAt      time.Time       `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	Status         ExecutionStatus `json:"status" db:"status"`
	ResponseStatus *int            `json:"responseStatusCode,omitempty" db:"response_status"`
	ResponseBody   *string         `json:"responseBody,omitempty" db:"response_body"`
	ErrorMessage   *string         `json:"errorMessage,omitempty" db:"error_message"`
	DurationMS     int64           `json:"durationMs" db:"duration_ms"`
	Attempt        int             `json:"attemptNumber" db:"attempt"`
}

// ScheduleChange is an append-only audit record of a cron expression rewrite.
// Controller-originated changes carry a reason with the "auto:" prefix.
type ScheduleChange struct {
	ID            uuid.UUID `json:"id" db:"id"`
	JobID         uuid.UUID `json:"jobId" db:"job_id"`
	OldExpression string    `json:"oldExpression" db:"old_expression"`
	NewExpression string    `json:"newExpression" db:"new_expression"`
	Reason        string    `json:"reason" db:"reason"`
	ChangedBy     string    `json:"changedBy" db:"changed_by"`
	ChangedAt     time.Time `json:"changedAt" db:"changed_at"`
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
