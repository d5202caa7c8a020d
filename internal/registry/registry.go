// Package registry holds the in-memory mapping from job ID to its live
// timer. It is derived state: fully reconstructible from storage at boot.
// Mutations are serialized through one mutex so at most one timer exists per
// job at any time.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// FireFunc is invoked when a job's timer fires. It must not block: the
// orchestrator wires it to a worker-pool enqueue.
type FireFunc func(job store.Job)

type entry struct {
	job  store.Job
	stop chan struct{}
}

// Registry owns the active timers.
type Registry struct {
	eval  *cron.Evaluator
	clock cron.Clock
	fire  FireFunc

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

func New(eval *cron.Evaluator, clock cron.Clock, fire FireFunc) *Registry {
	return &Registry{
		eval:    eval,
		clock:   clock,
		fire:    fire,
		entries: make(map[uuid.UUID]*entry),
	}
}

// Register arms a timer for the job, replacing any previous one. The first
// firing instant is validated up front so a job with a broken expression or
// timezone never enters the registry.
func (r *Registry) Register(job store.Job) error {
	next, err := r.eval.Next(job.Expression, job.Timezone, r.clock.Now())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.unregisterLocked(job.ID)

	e := &entry{job: job, stop: make(chan struct{})}
	r.entries[job.ID] = e
	go r.runTimer(e, next)

	slog.Debug("registry: timer armed", "job", job.ID, "name", job.Name, "next", next)
	return nil
}

// Unregister stops and removes the job's timer if present.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(id)
}

func (r *Registry) unregisterLocked(id uuid.UUID) {
	if e, ok := r.entries[id]; ok {
		close(e.stop)
		delete(r.entries, id)
	}
}

// Has reports whether a live timer exists for the job.
func (r *Registry) Has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Snapshot returns the IDs of all registered jobs.
func (r *Registry) Snapshot() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Close stops every timer.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		close(e.stop)
		delete(r.entries, id)
	}
}

// remove drops the entry only if it is still the registered one, so a timer
// disarming itself never evicts a replacement registered in the meantime.
func (r *Registry) remove(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[e.job.ID]; ok && cur == e {
		delete(r.entries, e.job.ID)
	}
}

// runTimer fires the job at each computed instant until stopped. The next
// firing is recomputed from "now" after each fire, so live expression
// rewrites (which go through Register and replace this goroutine) and clock
// drift never accumulate.
func (r *Registry) runTimer(e *entry, next time.Time) {
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		r.fire(e.job)

		after, err := r.eval.Next(e.job.Expression, e.job.Timezone, r.clock.Now())
		if err != nil {
			// Expression was valid at registration; an error here means the
			// schedule has no future firing. Drop the timer.
			slog.Error("registry: no next firing, disarming", "job", e.job.ID, "error", err)
			r.remove(e)
			return
		}
		next = after
	}
}
