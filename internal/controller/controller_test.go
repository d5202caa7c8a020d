package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/events"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*store.Job
	execs   map[uuid.UUID][]store.Execution
	changes []store.ScheduleChange
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  make(map[uuid.UUID]*store.Job),
		execs: make(map[uuid.UUID][]store.Execution),
	}
}

func (fs *fakeStore) add(job *store.Job, execs []store.Execution) {
	fs.jobs[job.ID] = job
	fs.execs[job.ID] = execs
}

func (fs *fakeStore) ListEnabledJobs(context.Context) ([]store.Job, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var jobs []store.Job
	for _, j := range fs.jobs {
		if j.Enabled {
			jobs = append(jobs, *j)
		}
	}
	return jobs, nil
}

func (fs *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*store.Job, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	j, ok := fs.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (fs *fakeStore) CreateJob(_ context.Context, job *store.Job) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.jobs[job.ID] = job
	return nil
}

func (fs *fakeStore) UpdateJob(_ context.Context, job *store.Job) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.jobs[job.ID]; !ok {
		return store.ErrNotFound
	}
	copied := *job
	fs.jobs[job.ID] = &copied
	return nil
}

func (fs *fakeStore) MarkJobRunning(_ context.Context, id uuid.UUID, firedAt time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	j, ok := fs.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = store.JobRunning
	j.LastFiredAt = &firedAt
	return nil
}

func (fs *fakeStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.jobs, id)
	return nil
}

func (fs *fakeStore) CreateExecution(context.Context, *store.Execution) error { return nil }

func (fs *fakeStore) CompleteExecution(context.Context, store.TerminalUpdate) error { return nil }

func (fs *fakeStore) AppendScheduleChange(_ context.Context, change *store.ScheduleChange) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.changes = append(fs.changes, *change)
	return nil
}

func (fs *fakeStore) ListExecutions(_ context.Context, jobID uuid.UUID, _ int) ([]store.Execution, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.execs[jobID], nil
}

func (fs *fakeStore) Close() error { return nil }

type fakeCommands struct {
	mu       sync.Mutex
	updated  []store.Job
	disabled []uuid.UUID
}

func (fc *fakeCommands) OnJobUpdated(_ context.Context, job *store.Job) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.updated = append(fc.updated, *job)
	return nil
}

func (fc *fakeCommands) OnJobDisabled(_ context.Context, id uuid.UUID) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.disabled = append(fc.disabled, id)
	return nil
}

func failedExecs(n int) []store.Execution {
	execs := make([]store.Execution, n)
	for i := range execs {
		execs[i] = store.Execution{Status: store.ExecutionFailed, DurationMS: 100}
	}
	return execs
}

func mixedExecs(failed, succeeded int) []store.Execution {
	// Interleave so the recent window sees both kinds.
	var execs []store.Execution
	for i := 0; i < failed || i < succeeded; i++ {
		if i < failed {
			execs = append(execs, store.Execution{Status: store.ExecutionFailed, DurationMS: 100})
		}
		if i < succeeded {
			execs = append(execs, store.Execution{Status: store.ExecutionSuccess, DurationMS: 100})
		}
	}
	return execs
}

func controllerJob(expr string) *store.Job {
	return &store.Job{
		ID:             store.GenNewID(),
		Name:           "reporting",
		Expression:     expr,
		Enabled:        true,
		RetryBudget:    3,
		AttemptTimeout: 30 * time.Second,
	}
}

func newTestController(fs *fakeStore, fc *fakeCommands) *Controller {
	clock := cron.SystemClock{}
	return New(Config{Enabled: true}, fs, fc, cron.NewEvaluator(), clock, events.Nop{})
}

func TestSweep_FailureBackoffRewritesSchedule(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	job := controllerJob("5 * * * *")
	// 6 of 10 failed: failure rate 0.6 triggers the 2x backoff.
	fs.add(job, mixedExecs(6, 4))

	if err := newTestController(fs, fc).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if stored.Expression != "10 * * * *" {
		t.Errorf("expression = %q, want %q", stored.Expression, "10 * * * *")
	}
	if !stored.Enabled {
		t.Error("job disabled, want enabled with stretched schedule")
	}

	if len(fs.changes) != 1 {
		t.Fatalf("schedule changes = %d, want 1", len(fs.changes))
	}
	change := fs.changes[0]
	if change.OldExpression != "5 * * * *" || change.NewExpression != "10 * * * *" {
		t.Errorf("change = %q -> %q, want 5 -> 10", change.OldExpression, change.NewExpression)
	}
	if !strings.HasPrefix(change.Reason, "auto:") {
		t.Errorf("reason = %q, want auto: prefix", change.Reason)
	}
	if change.Reason != "auto:failure-based-backoff" {
		t.Errorf("reason = %q, want auto:failure-based-backoff", change.Reason)
	}
	if change.ChangedBy != "rescheduling-controller" {
		t.Errorf("changedBy = %q, want rescheduling-controller", change.ChangedBy)
	}

	if len(fc.updated) != 1 || fc.updated[0].Expression != "10 * * * *" {
		t.Errorf("commands.OnJobUpdated calls = %v, want one with the new expression", fc.updated)
	}
}

func TestSweep_FailureStreakDisables(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	job := controllerJob("*/5 * * * *")
	// Young job, 3 straight failures: too little history for backoff rules,
	// the streak rule disables it.
	fs.add(job, failedExecs(3))

	if err := newTestController(fs, fc).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if stored.Enabled {
		t.Error("job still enabled after a failure streak")
	}
	if stored.Expression != "*/5 * * * *" {
		t.Errorf("expression = %q, want unchanged", stored.Expression)
	}
	if len(fs.changes) != 0 {
		t.Errorf("schedule changes = %d, want 0 (disable does not rewrite)", len(fs.changes))
	}
	if len(fc.disabled) != 1 || fc.disabled[0] != job.ID {
		t.Errorf("commands.OnJobDisabled calls = %v, want the job once", fc.disabled)
	}
}

func TestSweep_HealthyJobUntouched(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	job := controllerJob("*/5 * * * *")
	fs.add(job, mixedExecs(0, 25))

	if err := newTestController(fs, fc).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if stored.Expression != "*/5 * * * *" || !stored.Enabled {
		t.Error("healthy job was modified")
	}
	if len(fs.changes) != 0 || len(fc.updated) != 0 || len(fc.disabled) != 0 {
		t.Error("healthy job produced side effects")
	}
}

func TestSweep_DisabledControllerIsNoop(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	job := controllerJob("5 * * * *")
	fs.add(job, failedExecs(20))

	c := newTestController(fs, fc)
	c.SetEnabled(false)
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if !stored.Enabled || stored.Expression != "5 * * * *" {
		t.Error("disabled controller still acted on a job")
	}
}

func TestSweep_UnextendableExpressionKept(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	// List-form minute field cannot be stretched; high overall success keeps
	// the disable rule away, failure rate triggers extend which is a no-op.
	job := controllerJob("1,15,30 * * * *")
	fs.add(job, mixedExecs(6, 4))

	if err := newTestController(fs, fc).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if stored.Expression != "1,15,30 * * * *" {
		t.Errorf("expression = %q, want unchanged", stored.Expression)
	}
	if len(fs.changes) != 0 {
		t.Errorf("schedule changes = %d, want 0", len(fs.changes))
	}
}

func TestSweep_InvalidRewriteKept(t *testing.T) {
	fs := newFakeStore()
	fc := &fakeCommands{}
	// 45 x 2 = 90, which is not a valid minute; the rewrite must be refused
	// and the original schedule kept.
	job := controllerJob("45 * * * *")
	fs.add(job, mixedExecs(6, 4))

	if err := newTestController(fs, fc).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	stored, _ := fs.GetJob(context.Background(), job.ID)
	if stored.Expression != "45 * * * *" {
		t.Errorf("expression = %q, want unchanged", stored.Expression)
	}
	if len(fs.changes) != 0 {
		t.Errorf("schedule changes = %d, want 0", len(fs.changes))
	}
}
