// Package driver runs the per-firing state machine: mark the job running,
// attempt the HTTP call up to the job's retry budget with exponential
// backoff, then atomically persist the terminal state and the next firing
// instant.
//
// Success policy: an attempt succeeds iff a response was received and its
// status code is in [200, 400). Transport errors, timeouts, and status >= 400
// all count as attempt failures and consume retry budget.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/events"
	"github.com/nextlevelbuilder/hookcron/internal/invoker"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// cancelledMessage is persisted as errorMessage when shutdown interrupts a
// firing mid-backoff.
const cancelledMessage = "CANCELLED"

// terminalWriteTimeout bounds the terminal store write. The write runs on a
// context detached from the firing's: a firing cancelled by shutdown must
// still persist its FAILED/CANCELLED row.
const terminalWriteTimeout = 5 * time.Second

// HTTPInvoker is the slice of the invoker the driver needs.
type HTTPInvoker interface {
	Invoke(ctx context.Context, req invoker.Request) (*invoker.Response, error)
}

// ApplicationError marks an attempt that received a response with a status
// outside the success window.
type ApplicationError struct {
	StatusCode int
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Backoff is the inter-attempt sleep schedule: min(Base·2^(attempt-1), Cap).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff is 1s, 2s, 4s, … capped at 60s.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 60 * time.Second}
}

// Delay returns the sleep before the given retry (attempt is the one that
// just failed, 1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base << uint(attempt-1)
	if delay > b.Cap || delay <= 0 {
		delay = b.Cap
	}
	return delay
}

// Driver executes firings.
type Driver struct {
	store   store.Store
	invoker HTTPInvoker
	eval    *cron.Evaluator
	clock   cron.Clock
	events  events.Publisher
	backoff Backoff
}

func New(st store.Store, inv HTTPInvoker, eval *cron.Evaluator, clock cron.Clock, pub events.Publisher) *Driver {
	return &Driver{
		store:   st,
		invoker: inv,
		eval:    eval,
		clock:   clock,
		events:  pub,
		backoff: DefaultBackoff(),
	}
}

// SetBackoff overrides the retry schedule (tests).
func (d *Driver) SetBackoff(b Backoff) { d.backoff = b }

// Execute drives one firing of the job to a terminal state. The job row is
// re-fetched first: a job deleted after its firing was enqueued aborts
// without writing anything.
func (d *Driver) Execute(ctx context.Context, fired store.Job) (*store.Execution, error) {
	job, err := d.store.GetJob(ctx, fired.ID)
	if err != nil {
		if err == store.ErrNotFound {
			slog.Info("firing aborted, job no longer exists", "job", fired.ID)
			return nil, err
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	firingStart := d.clock.Now()

	// Narrow write on purpose: a concurrent expression rewrite landing
	// between the re-fetch above and this mark must not be clobbered.
	if err := d.store.MarkJobRunning(ctx, job.ID, firingStart); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	job.Status = store.JobRunning
	job.LastFiredAt = &firingStart
	job.UpdatedAt = firingStart
	d.events.Publish(ctx, events.Event{
		Kind:      events.ExecutionStarted,
		JobID:     job.ID,
		JobName:   job.Name,
		Status:    string(store.ExecutionRunning),
		Timestamp: firingStart,
	})

	exec := &store.Execution{
		ID:        store.GenNewID(),
		JobID:     job.ID,
		StartedAt: firingStart,
		Status:    store.ExecutionRunning,
		Attempt:   1,
	}
	if err := d.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	// Budget below 1 would skip the loop entirely; clamp so every firing
	// makes at least one attempt.
	budget := job.RetryBudget
	if budget < 1 {
		budget = 1
	}

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		resp, attemptErr := d.attempt(ctx, job)
		if attemptErr == nil {
			return d.completeSuccess(ctx, job, exec, resp, attempt, firingStart)
		}
		lastErr = attemptErr

		if attempt < budget {
			if err := d.sleep(ctx, d.backoff.Delay(attempt)); err != nil {
				return d.completeFailed(ctx, job, exec, cancelledMessage, attempt, firingStart)
			}
		}
	}

	return d.completeFailed(ctx, job, exec, lastErr.Error(), budget, firingStart)
}

// attempt performs one HTTP call and applies the strict success policy.
func (d *Driver) attempt(ctx context.Context, job *store.Job) (*invoker.Response, error) {
	resp, err := d.invoker.Invoke(ctx, invoker.Request{
		Method:  job.Method,
		URL:     job.URL,
		Headers: job.Headers,
		Query:   job.Query,
		Body:    job.Body,
		Timeout: job.AttemptTimeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &ApplicationError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (d *Driver) completeSuccess(ctx context.Context, job *store.Job, exec *store.Execution, resp *invoker.Response, attempt int, firingStart time.Time) (*store.Execution, error) {
	now := d.clock.Now()
	next := d.nextFireAt(job, now)

	body := FilterBody(resp.Body)
	if body == nil && resp.Body != "" {
		slog.Warn("response body looks like HTML, not persisting", "job", job.ID, "execution", exec.ID)
	}

	upd := store.TerminalUpdate{
		ExecutionID:    exec.ID,
		JobID:          job.ID,
		Status:         store.ExecutionSuccess,
		ResponseStatus: &resp.StatusCode,
		ResponseBody:   body,
		DurationMS:     now.Sub(firingStart).Milliseconds(),
		Attempt:        attempt,
		CompletedAt:    now,
		JobStatus:      store.JobSuccess,
		NextFireAt:     next,
	}
	return d.finish(ctx, job, exec, upd, "")
}

func (d *Driver) completeFailed(ctx context.Context, job *store.Job, exec *store.Execution, message string, attempt int, firingStart time.Time) (*store.Execution, error) {
	now := d.clock.Now()
	next := d.nextFireAt(job, now)

	upd := store.TerminalUpdate{
		ExecutionID:  exec.ID,
		JobID:        job.ID,
		Status:       store.ExecutionFailed,
		ErrorMessage: &message,
		DurationMS:   now.Sub(firingStart).Milliseconds(),
		Attempt:      attempt,
		CompletedAt:  now,
		JobStatus:    store.JobFailed,
		NextFireAt:   next,
	}
	return d.finish(ctx, job, exec, upd, message)
}

// finish applies the atomic terminal write and emits execution.completed.
// A store failure leaves the execution RUNNING; the event is still emitted
// (synthetically FAILED) so consumers see the firing end, and the next firing
// converges the row state.
func (d *Driver) finish(ctx context.Context, job *store.Job, exec *store.Execution, upd store.TerminalUpdate, errMsg string) (*store.Execution, error) {
	// Detached from the firing's context: when cancellation is what ended
	// the firing, the terminal write still has to land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if err := d.store.CompleteExecution(ctx, upd); err != nil {
		slog.Error("terminal update failed, execution left RUNNING", "job", job.ID, "execution", exec.ID, "error", err)
		d.events.Publish(ctx, events.Event{
			Kind:         events.ExecutionCompleted,
			JobID:        job.ID,
			JobName:      job.Name,
			Status:       string(store.ExecutionFailed),
			ErrorMessage: "store failure: " + err.Error(),
			Timestamp:    upd.CompletedAt,
		})
		return nil, fmt.Errorf("complete execution: %w", err)
	}

	exec.Status = upd.Status
	exec.ResponseStatus = upd.ResponseStatus
	exec.ResponseBody = upd.ResponseBody
	exec.ErrorMessage = upd.ErrorMessage
	exec.DurationMS = upd.DurationMS
	exec.Attempt = upd.Attempt
	exec.CompletedAt = &upd.CompletedAt

	d.events.Publish(ctx, events.Event{
		Kind:         events.ExecutionCompleted,
		JobID:        job.ID,
		JobName:      job.Name,
		Status:       string(upd.Status),
		ErrorMessage: errMsg,
		Timestamp:    upd.CompletedAt,
	})
	return exec, nil
}

// nextFireAt computes the firing after now; nil when the expression no longer
// yields one (the registry disarms on its own).
func (d *Driver) nextFireAt(job *store.Job, now time.Time) *time.Time {
	next, err := d.eval.Next(job.Expression, job.Timezone, now)
	if err != nil {
		slog.Error("next firing computation failed", "job", job.ID, "expr", job.Expression, "error", err)
		return nil
	}
	return &next
}

// sleep waits the backoff delay, aborting promptly on cancellation.
func (d *Driver) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
