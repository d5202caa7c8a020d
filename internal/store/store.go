package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job, execution, or schedule change does not
// exist. The execution driver uses it to detect jobs deleted mid-flight.
var ErrNotFound = errors.New("not found")

// MaxExecutionHistory is the largest window ListExecutions serves. The
// rescheduling controller reads exactly this many rows per job.
const MaxExecutionHistory = 100

// TerminalUpdate carries the combined execution + job terminal write. The
// store must apply it in one transaction: this is the core's only
// cross-entity write.
type TerminalUpdate struct {
	ExecutionID    uuid.UUID
	JobID          uuid.UUID
	Status         ExecutionStatus // SUCCESS or FAILED
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	DurationMS     int64
	Attempt        int
	CompletedAt    time.Time

	JobStatus  JobStatus
	NextFireAt *time.Time
}

// Store is the narrow persistence interface the scheduler core consumes.
// Every method is atomic on its own.
type Store interface {
	// ListEnabledJobs returns all enabled jobs. Used at boot to rehydrate
	// the registry.
	ListEnabledJobs(ctx context.Context) ([]Job, error)

	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// MarkJobRunning sets status=RUNNING, lastFiredAt, and updatedAt —
	// nothing else. The firing path must not write the full row: a
	// concurrent expression rewrite would be silently reverted.
	MarkJobRunning(ctx context.Context, id uuid.UUID, firedAt time.Time) error

	// CreateExecution persists a new execution in RUNNING state.
	CreateExecution(ctx context.Context, exec *Execution) error

	// CompleteExecution applies the terminal update transactionally:
	// execution fields and the parent job's status + nextFireAt together.
	CompleteExecution(ctx context.Context, upd TerminalUpdate) error

	AppendScheduleChange(ctx context.Context, change *ScheduleChange) error

	// ListExecutions returns the last limit executions for a job ordered by
	// startedAt descending. limit is clamped to MaxExecutionHistory.
	ListExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]Execution, error)

	Close() error
}
