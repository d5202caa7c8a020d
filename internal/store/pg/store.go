package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// Store implements store.Store over Postgres.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// jobRow is the scan target; JSON columns need the detour through []byte.
type jobRow struct {
	ID               uuid.UUID    `db:"id"`
	Name             string       `db:"name"`
	Description      string       `db:"description"`
	Expression       string       `db:"expression"`
	Timezone         string       `db:"timezone"`
	URL              string       `db:"url"`
	Method           string       `db:"method"`
	Headers          []byte       `db:"headers"`
	Query            []byte       `db:"query"`
	Body             *string      `db:"body"`
	Enabled          bool         `db:"enabled"`
	RetryBudget      int          `db:"retry_budget"`
	AttemptTimeoutMS int64        `db:"attempt_timeout_ms"`
	OwnerID          string       `db:"owner_id"`
	Status           string       `db:"status"`
	LastFiredAt      *time.Time   `db:"last_fired_at"`
	NextFireAt       *time.Time   `db:"next_fire_at"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

const jobColumns = `id, name, description, expression, timezone, url, method, headers, query, body,
	enabled, retry_budget, attempt_timeout_ms, owner_id, status, last_fired_at, next_fire_at,
	created_at, updated_at`

func (r *jobRow) toJob() (*store.Job, error) {
	job := &store.Job{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Expression:     r.Expression,
		Timezone:       r.Timezone,
		URL:            r.URL,
		Method:         r.Method,
		Body:           r.Body,
		Enabled:        r.Enabled,
		RetryBudget:    r.RetryBudget,
		AttemptTimeout: time.Duration(r.AttemptTimeoutMS) * time.Millisecond,
		OwnerID:        r.OwnerID,
		Status:         store.JobStatus(r.Status),
		LastFiredAt:    r.LastFiredAt,
		NextFireAt:     r.NextFireAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.Headers) > 0 {
		if err := json.Unmarshal(r.Headers, &job.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	if len(r.Query) > 0 {
		if err := json.Unmarshal(r.Query, &job.Query); err != nil {
			return nil, fmt.Errorf("decode query: %w", err)
		}
	}
	return job, nil
}

func mapJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	data, _ := json.Marshal(m)
	return data
}

func (s *Store) ListEnabledJobs(ctx context.Context) ([]store.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+jobColumns+` FROM jobs WHERE enabled = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list enabled jobs: %w", err)
	}

	jobs := make([]store.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toJob()
}

func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, description, expression, timezone, url, method, headers, query, body,
		 enabled, retry_budget, attempt_timeout_ms, owner_id, status, last_fired_at, next_fire_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		job.ID, job.Name, job.Description, job.Expression, job.Timezone, job.URL, job.Method,
		mapJSON(job.Headers), mapJSON(job.Query), job.Body, job.Enabled, job.RetryBudget,
		job.AttemptTimeout.Milliseconds(), job.OwnerID, job.Status, job.LastFiredAt, job.NextFireAt,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *store.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET name = $2, description = $3, expression = $4, timezone = $5, url = $6,
		 method = $7, headers = $8, query = $9, body = $10, enabled = $11, retry_budget = $12,
		 attempt_timeout_ms = $13, owner_id = $14, status = $15, last_fired_at = $16,
		 next_fire_at = $17, updated_at = $18
		 WHERE id = $1`,
		job.ID, job.Name, job.Description, job.Expression, job.Timezone, job.URL, job.Method,
		mapJSON(job.Headers), mapJSON(job.Query), job.Body, job.Enabled, job.RetryBudget,
		job.AttemptTimeout.Milliseconds(), job.OwnerID, job.Status, job.LastFiredAt, job.NextFireAt,
		job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkJobRunning(ctx context.Context, id uuid.UUID, firedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $2, last_fired_at = $3, updated_at = $3 WHERE id = $1`,
		id, store.JobRunning, firedAt)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, exec *store.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, job_id, started_at, completed_at, status, response_status,
		 response_body, error_message, duration_ms, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exec.ID, exec.JobID, exec.StartedAt, exec.CompletedAt, exec.Status, exec.ResponseStatus,
		exec.ResponseBody, exec.ErrorMessage, exec.DurationMS, exec.Attempt)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// CompleteExecution is the core's only cross-entity write: the execution's
// terminal fields and the parent job's status + nextFireAt land in one
// transaction.
func (s *Store) CompleteExecution(ctx context.Context, upd store.TerminalUpdate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin terminal update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE executions SET status = $2, response_status = $3, response_body = $4,
		 error_message = $5, duration_ms = $6, attempt = $7, completed_at = $8
		 WHERE id = $1`,
		upd.ExecutionID, upd.Status, upd.ResponseStatus, upd.ResponseBody,
		upd.ErrorMessage, upd.DurationMS, upd.Attempt, upd.CompletedAt)
	if err != nil {
		return fmt.Errorf("terminal update execution: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = $2, next_fire_at = $3, updated_at = $4 WHERE id = $1`,
		upd.JobID, upd.JobStatus, upd.NextFireAt, upd.CompletedAt)
	if err != nil {
		return fmt.Errorf("terminal update job: %w", err)
	}

	return tx.Commit()
}

func (s *Store) AppendScheduleChange(ctx context.Context, change *store.ScheduleChange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_changes (id, job_id, old_expression, new_expression, reason, changed_by, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ID, change.JobID, change.OldExpression, change.NewExpression,
		change.Reason, change.ChangedBy, change.ChangedAt)
	if err != nil {
		return fmt.Errorf("append schedule change: %w", err)
	}
	return nil
}

func (s *Store) ListExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]store.Execution, error) {
	if limit <= 0 || limit > store.MaxExecutionHistory {
		limit = store.MaxExecutionHistory
	}

	var execs []store.Execution
	err := s.db.SelectContext(ctx, &execs,
		`SELECT id, job_id, started_at, completed_at, status, response_status, response_body,
		 error_message, duration_ms, attempt
		 FROM executions WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}
