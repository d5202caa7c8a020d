// Package sqlite implements the store over a single-file SQLite database
// (standalone mode). Timestamps are stored as Unix milliseconds; header and
// query maps as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// Store implements store.Store over SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; more connections just contend.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *Store) bootstrap() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			expression         TEXT NOT NULL,
			timezone           TEXT NOT NULL DEFAULT 'UTC',
			url                TEXT NOT NULL,
			method             TEXT NOT NULL,
			headers            TEXT NOT NULL DEFAULT '{}',
			query              TEXT NOT NULL DEFAULT '{}',
			body               TEXT,
			enabled            INTEGER NOT NULL DEFAULT 1,
			retry_budget       INTEGER NOT NULL DEFAULT 3,
			attempt_timeout_ms INTEGER NOT NULL DEFAULT 30000,
			owner_id           TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'PENDING',
			last_fired_at_ms   INTEGER,
			next_fire_at_ms    INTEGER,
			created_at_ms      INTEGER NOT NULL,
			updated_at_ms      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id              TEXT PRIMARY KEY,
			job_id          TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			started_at_ms   INTEGER NOT NULL,
			completed_at_ms INTEGER,
			status          TEXT NOT NULL,
			response_status INTEGER,
			response_body   TEXT,
			error_message   TEXT,
			duration_ms     INTEGER NOT NULL DEFAULT 0,
			attempt         INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_job_started ON executions(job_id, started_at_ms DESC)`,
		`CREATE TABLE IF NOT EXISTS schedule_changes (
			id             TEXT PRIMARY KEY,
			job_id         TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			old_expression TEXT NOT NULL,
			new_expression TEXT NOT NULL,
			reason         TEXT NOT NULL DEFAULT '',
			changed_by     TEXT NOT NULL DEFAULT '',
			changed_at_ms  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_changes_job_changed ON schedule_changes(job_id, changed_at_ms DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- time helpers ---

func toMS(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMS(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

const jobColumns = `id, name, description, expression, timezone, url, method, headers, query, body,
	enabled, retry_budget, attempt_timeout_ms, owner_id, status, last_fired_at_ms, next_fire_at_ms,
	created_at_ms, updated_at_ms`

func scanJob(row interface{ Scan(...any) error }) (*store.Job, error) {
	var (
		job         store.Job
		id          string
		headersJSON string
		queryJSON   string
		enabled     int
		timeoutMS   int64
		lastFiredMS *int64
		nextFireMS  *int64
		createdAtMS int64
		updatedAtMS int64
		status      string
	)
	err := row.Scan(&id, &job.Name, &job.Description, &job.Expression, &job.Timezone, &job.URL,
		&job.Method, &headersJSON, &queryJSON, &job.Body, &enabled, &job.RetryBudget, &timeoutMS,
		&job.OwnerID, &status, &lastFiredMS, &nextFireMS, &createdAtMS, &updatedAtMS)
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &job.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := json.Unmarshal([]byte(queryJSON), &job.Query); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	job.Enabled = enabled != 0
	job.AttemptTimeout = time.Duration(timeoutMS) * time.Millisecond
	job.Status = store.JobStatus(status)
	job.LastFiredAt = fromMS(lastFiredMS)
	job.NextFireAt = fromMS(nextFireMS)
	job.CreatedAt = time.UnixMilli(createdAtMS).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAtMS).UTC()

	if len(job.Headers) == 0 {
		job.Headers = nil
	}
	if len(job.Query) == 0 {
		job.Query = nil
	}
	return &job, nil
}

func mapJSON(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func (s *Store) ListEnabledJobs(ctx context.Context) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE enabled = 1 ORDER BY created_at_ms`)
	if err != nil {
		return nil, fmt.Errorf("list enabled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id.String())
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		job.ID.String(), job.Name, job.Description, job.Expression, job.Timezone, job.URL, job.Method,
		mapJSON(job.Headers), mapJSON(job.Query), job.Body, boolInt(job.Enabled), job.RetryBudget,
		job.AttemptTimeout.Milliseconds(), job.OwnerID, string(job.Status),
		toMS(job.LastFiredAt), toMS(job.NextFireAt), job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *store.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET name = $2, description = $3, expression = $4, timezone = $5, url = $6,
		 method = $7, headers = $8, query = $9, body = $10, enabled = $11, retry_budget = $12,
		 attempt_timeout_ms = $13, owner_id = $14, status = $15, last_fired_at_ms = $16,
		 next_fire_at_ms = $17, updated_at_ms = $18
		 WHERE id = $1`,
		job.ID.String(), job.Name, job.Description, job.Expression, job.Timezone, job.URL, job.Method,
		mapJSON(job.Headers), mapJSON(job.Query), job.Body, boolInt(job.Enabled), job.RetryBudget,
		job.AttemptTimeout.Milliseconds(), job.OwnerID, string(job.Status),
		toMS(job.LastFiredAt), toMS(job.NextFireAt), job.UpdatedAt.UnixMilli())
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
		`UPDATE jobs SET status = $2, last_fired_at_ms = $3, updated_at_ms = $3 WHERE id = $1`,
		id.String(), string(store.JobRunning), firedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id.String())
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
		`INSERT INTO executions (id, job_id, started_at_ms, completed_at_ms, status,
		 response_status, response_body, error_message, duration_ms, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exec.ID.String(), exec.JobID.String(), exec.StartedAt.UnixMilli(), toMS(exec.CompletedAt),
		string(exec.Status), exec.ResponseStatus, exec.ResponseBody, exec.ErrorMessage,
		exec.DurationMS, exec.Attempt)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// CompleteExecution applies the combined execution + job terminal write in
// one transaction.
func (s *Store) CompleteExecution(ctx context.Context, upd store.TerminalUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin terminal update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE executions SET status = $2, response_status = $3, response_body = $4,
		 error_message = $5, duration_ms = $6, attempt = $7, completed_at_ms = $8
		 WHERE id = $1`,
		upd.ExecutionID.String(), string(upd.Status), upd.ResponseStatus, upd.ResponseBody,
		upd.ErrorMessage, upd.DurationMS, upd.Attempt, upd.CompletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("terminal update execution: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = $2, next_fire_at_ms = $3, updated_at_ms = $4 WHERE id = $1`,
		upd.JobID.String(), string(upd.JobStatus), toMS(upd.NextFireAt), upd.CompletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("terminal update job: %w", err)
	}

	return tx.Commit()
}

func (s *Store) AppendScheduleChange(ctx context.Context, change *store.ScheduleChange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_changes (id, job_id, old_expression, new_expression, reason, changed_by, changed_at_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ID.String(), change.JobID.String(), change.OldExpression, change.NewExpression,
		change.Reason, change.ChangedBy, change.ChangedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("append schedule change: %w", err)
	}
	return nil
}

func (s *Store) ListExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]store.Execution, error) {
	if limit <= 0 || limit > store.MaxExecutionHistory {
		limit = store.MaxExecutionHistory
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, started_at_ms, completed_at_ms, status, response_status,
		 response_body, error_message, duration_ms, attempt
		 FROM executions WHERE job_id = $1 ORDER BY started_at_ms DESC LIMIT $2`,
		jobID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []store.Execution
	for rows.Next() {
		var (
			exec        store.Execution
			id          string
			jid         string
			startedMS   int64
			completedMS *int64
			status      string
		)
		err := rows.Scan(&id, &jid, &startedMS, &completedMS, &status, &exec.ResponseStatus,
			&exec.ResponseBody, &exec.ErrorMessage, &exec.DurationMS, &exec.Attempt)
		if err != nil {
			return nil, err
		}
		exec.ID, _ = uuid.Parse(id)
		exec.JobID, _ = uuid.Parse(jid)
		exec.StartedAt = time.UnixMilli(startedMS).UTC()
		exec.CompletedAt = fromMS(completedMS)
		exec.Status = store.ExecutionStatus(status)
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
