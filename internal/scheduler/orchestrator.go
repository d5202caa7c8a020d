// Package scheduler wires the scheduler core together: it rehydrates the
// timer registry from storage at boot, applies external commands from the
// CRUD collaborator, routes firings through the worker pool into the
// execution driver, and drains everything on shutdown.
//
// The command methods are synchronous: they return only after the registry
// mutation is visible. Authorization happened upstream — the core trusts its
// command inputs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hookcron/internal/controller"
	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/driver"
	"github.com/nextlevelbuilder/hookcron/internal/events"
	"github.com/nextlevelbuilder/hookcron/internal/pool"
	"github.com/nextlevelbuilder/hookcron/internal/registry"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// Config carries the orchestrator's runtime knobs.
type Config struct {
	// ShutdownGrace bounds how long active firings get to finish (default 30s).
	ShutdownGrace time.Duration
}

// Orchestrator owns the core's lifecycle.
type Orchestrator struct {
	cfg        Config
	store      store.Store
	registry   *registry.Registry
	pool       *pool.Pool
	driver     *driver.Driver
	events     events.Publisher
	controller *controller.Controller
	clock      cron.Clock
}

// New assembles the orchestrator. The registry's fire path is wired here:
// timer fires enqueue into the pool as scheduled (non-manual) work.
func New(cfg Config, st store.Store, p *pool.Pool, d *driver.Driver, eval *cron.Evaluator, clock cron.Clock, pub events.Publisher) *Orchestrator {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	o := &Orchestrator{
		cfg:    cfg,
		store:  st,
		pool:   p,
		driver: d,
		events: pub,
		clock:  clock,
	}
	o.registry = registry.New(eval, clock, o.fireScheduled)
	return o
}

// SetController attaches the rescheduling controller. Optional: the
// orchestrator runs fine without one (controller disabled).
func (o *Orchestrator) SetController(c *controller.Controller) {
	o.controller = c
}

// Registry exposes the timer registry for read-side checks (Has/Snapshot).
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Start rehydrates timers from storage and launches the pool and controller.
// Jobs whose expression or timezone no longer parses are logged and skipped;
// they stay in storage for the owner to fix.
func (o *Orchestrator) Start(ctx context.Context) error {
	jobs, err := o.store.ListEnabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("load enabled jobs: %w", err)
	}

	o.pool.Start()

	var registered int
	for i := range jobs {
		if err := o.registry.Register(jobs[i]); err != nil {
			slog.Error("boot: job skipped, schedule does not parse", "job", jobs[i].ID, "name", jobs[i].Name, "error", err)
			continue
		}
		registered++
	}

	if o.controller != nil {
		o.controller.Start(ctx)
	}

	slog.Info("scheduler started", "jobs", registered, "skipped", len(jobs)-registered)
	return nil
}

// Shutdown stops the controller, disarms all timers, drains the pool within
// the grace deadline, and releases the store.
func (o *Orchestrator) Shutdown() {
	if o.controller != nil {
		o.controller.Stop()
	}
	o.registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownGrace)
	defer cancel()
	o.pool.Shutdown(ctx)

	if err := o.store.Close(); err != nil {
		slog.Error("store close failed", "error", err)
	}
	slog.Info("scheduler stopped")
}

// fireScheduled is the registry's timer action: admit the firing without
// blocking the timer goroutine. An overflow drops the firing with a log and
// no execution row.
func (o *Orchestrator) fireScheduled(job store.Job) {
	err := o.pool.Submit(func(ctx context.Context) {
		if _, err := o.driver.Execute(ctx, job); err != nil && err != store.ErrNotFound {
			slog.Error("firing failed", "job", job.ID, "name", job.Name, "error", err)
		}
	}, false)
	if err != nil {
		slog.Warn("firing not admitted", "job", job.ID, "name", job.Name, "error", err)
	}
}

// --- External command interface (consumed from the CRUD collaborator) ---

// OnJobCreated registers the new job's timer when enabled and announces it.
func (o *Orchestrator) OnJobCreated(ctx context.Context, job *store.Job) error {
	if err := store.ValidateJob(job); err != nil {
		return err
	}
	if err := o.deriveRegistration(job); err != nil {
		return err
	}
	o.events.Publish(ctx, events.Event{
		Kind:      events.JobCreated,
		JobID:     job.ID,
		JobName:   job.Name,
		Timestamp: o.clock.Now(),
	})
	return nil
}

// OnJobUpdated re-derives the registry entry from the post-mutation row.
func (o *Orchestrator) OnJobUpdated(ctx context.Context, job *store.Job) error {
	if err := store.ValidateJob(job); err != nil {
		return err
	}
	if err := o.deriveRegistration(job); err != nil {
		return err
	}
	o.events.Publish(ctx, events.Event{
		Kind:      events.JobUpdated,
		JobID:     job.ID,
		JobName:   job.Name,
		Timestamp: o.clock.Now(),
	})
	return nil
}

// OnJobDeleted disarms the timer. Firings already admitted find the row gone
// and abort before writing.
func (o *Orchestrator) OnJobDeleted(ctx context.Context, id uuid.UUID) error {
	o.registry.Unregister(id)
	o.events.Publish(ctx, events.Event{
		Kind:      events.JobDeleted,
		JobID:     id,
		Timestamp: o.clock.Now(),
	})
	return nil
}

// OnJobEnabled arms the timer for a freshly enabled job.
func (o *Orchestrator) OnJobEnabled(ctx context.Context, job *store.Job) error {
	return o.OnJobUpdated(ctx, job)
}

// OnJobDisabled disarms the timer.
func (o *Orchestrator) OnJobDisabled(ctx context.Context, id uuid.UUID) error {
	o.registry.Unregister(id)
	return nil
}

// TriggerManual runs a job now, ahead of scheduled firings, and waits for
// its terminal execution.
func (o *Orchestrator) TriggerManual(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		exec *store.Execution
		err  error
	}
	done := make(chan outcome, 1)

	err = o.pool.Submit(func(runCtx context.Context) {
		exec, execErr := o.driver.Execute(runCtx, *job)
		done <- outcome{exec: exec, err: execErr}
	}, true)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.exec, out.err
	}
}

// deriveRegistration applies the "registry mirrors enabled rows" invariant.
func (o *Orchestrator) deriveRegistration(job *store.Job) error {
	if !job.Enabled {
		o.registry.Unregister(job.ID)
		return nil
	}
	return o.registry.Register(*job)
}
