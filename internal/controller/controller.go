// Package controller is the auto-rescheduling control loop. Once an hour it
// reads per-job execution metrics and either rewrites the cron expression
// (stretching the minute interval) or disables the job, following an ordered
// rule set where the first match wins.
package controller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/events"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

const defaultSweepInterval = time.Hour

// reasonPrefix marks controller-originated schedule changes in the audit
// trail.
const reasonPrefix = "auto:"

// changedBy is the author identity recorded on controller rewrites.
const changedBy = "rescheduling-controller"

// Commands is the slice of the lifecycle orchestrator the controller drives.
// The controller never talks to the CRUD collaborator.
type Commands interface {
	OnJobUpdated(ctx context.Context, job *store.Job) error
	OnJobDisabled(ctx context.Context, id uuid.UUID) error
}

// Config tunes the sweep.
type Config struct {
	// Interval between sweeps (default 1h).
	Interval time.Duration
	// BatchSize is the parallel width of one sweep (default 50).
	BatchSize int
	// Enabled arms the controller; it can be flipped at runtime.
	Enabled bool
}

// Controller runs the periodic sweep.
type Controller struct {
	cfg      Config
	store    store.Store
	commands Commands
	eval     *cron.Evaluator
	clock    cron.Clock
	events   events.Publisher

	enabled atomic.Bool
	stop    chan struct{}
}

func New(cfg Config, st store.Store, cmds Commands, eval *cron.Evaluator, clock cron.Clock, pub events.Publisher) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	c := &Controller{
		cfg:      cfg,
		store:    st,
		commands: cmds,
		eval:     eval,
		clock:    clock,
		events:   pub,
		stop:     make(chan struct{}),
	}
	c.enabled.Store(cfg.Enabled)
	return c
}

// SetEnabled flips the process-wide toggle (wired to config hot reload).
func (c *Controller) SetEnabled(on bool) {
	was := c.enabled.Swap(on)
	if was != on {
		slog.Info("auto-rescheduling toggled", "enabled", on)
	}
}

// Start launches the sweep loop.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
	slog.Info("rescheduling controller started", "interval", c.cfg.Interval, "batch", c.cfg.BatchSize, "enabled", c.enabled.Load())
}

// Stop halts the loop. Safe to call once.
func (c *Controller) Stop() {
	close(c.stop)
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				slog.Error("controller sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over all enabled jobs. Individual job failures are
// logged and do not abort the sweep; only a failure to list jobs does.
func (c *Controller) Sweep(ctx context.Context) error {
	if !c.enabled.Load() {
		return nil
	}

	jobs, err := c.store.ListEnabledJobs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchSize)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			if err := c.evaluateJob(gctx, &job); err != nil {
				slog.Error("controller: job evaluation failed", "job", job.ID, "name", job.Name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) evaluateJob(ctx context.Context, job *store.Job) error {
	execs, err := c.store.ListExecutions(ctx, job.ID, store.MaxExecutionHistory)
	if err != nil {
		return err
	}

	metrics := ComputeMetrics(execs, job.AttemptTimeout)
	matched := matchRule(metrics)
	if matched == nil || matched.action == actionKeep {
		return nil
	}

	switch matched.action {
	case actionDisable:
		return c.disable(ctx, job, matched.name)
	case actionExtend:
		return c.extend(ctx, job, matched.name, matched.factor)
	}
	return nil
}

// disable turns the job off. The expression is unchanged, so no
// ScheduleChange row is appended; consumers see a plain job.updated.
func (c *Controller) disable(ctx context.Context, job *store.Job, ruleName string) error {
	slog.Warn("controller: disabling job", "job", job.ID, "name", job.Name, "rule", ruleName)

	job.Enabled = false
	job.UpdatedAt = c.clock.Now()
	if err := c.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	if err := c.commands.OnJobDisabled(ctx, job.ID); err != nil {
		return err
	}
	c.events.Publish(ctx, events.Event{
		Kind:      events.JobUpdated,
		JobID:     job.ID,
		JobName:   job.Name,
		Timestamp: job.UpdatedAt,
	})
	return nil
}

// extend stretches the cron interval, audits the rewrite, and re-registers
// the timer through the orchestrator.
func (c *Controller) extend(ctx context.Context, job *store.Job, ruleName string, factor float64) error {
	oldExpr := job.Expression
	newExpr, changed := cron.ExtendInterval(oldExpr, factor)
	if !changed {
		return nil
	}
	if _, err := c.eval.Validate(newExpr, c.clock.Now()); err != nil {
		slog.Warn("controller: rewritten expression invalid, keeping schedule", "job", job.ID, "expr", newExpr, "error", err)
		return nil
	}

	now := c.clock.Now()
	change := &store.ScheduleChange{
		ID:            store.GenNewID(),
		JobID:         job.ID,
		OldExpression: oldExpr,
		NewExpression: newExpr,
		Reason:        reasonPrefix + ruleName,
		ChangedBy:     changedBy,
		ChangedAt:     now,
	}
	if err := c.store.AppendScheduleChange(ctx, change); err != nil {
		return err
	}

	job.Expression = newExpr
	job.UpdatedAt = now
	if err := c.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	if err := c.commands.OnJobUpdated(ctx, job); err != nil {
		return err
	}

	slog.Info("controller: schedule extended", "job", job.ID, "name", job.Name, "rule", ruleName, "old", oldExpr, "new", newExpr)
	c.events.Publish(ctx, events.Event{
		Kind:          events.ScheduleChanged,
		JobID:         job.ID,
		JobName:       job.Name,
		OldExpression: oldExpr,
		NewExpression: newExpr,
		Timestamp:     now,
	})
	return nil
}
