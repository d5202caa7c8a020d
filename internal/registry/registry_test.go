package registry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/hookcron/internal/cron"
	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// fixedClock pins schedule evaluation to one instant so firing instants are
// deterministic.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testJob(expr string) store.Job {
	return store.Job{
		ID:         store.GenNewID(),
		Name:       "test",
		Expression: expr,
		Enabled:    true,
	}
}

func TestRegistry_RegisterAndHas(t *testing.T) {
	r := New(cron.NewEvaluator(), cron.SystemClock{}, func(store.Job) {})
	defer r.Close()

	job := testJob("0 0 * * *")
	if err := r.Register(job); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !r.Has(job.ID) {
		t.Error("Has = false after Register")
	}

	r.Unregister(job.ID)
	if r.Has(job.ID) {
		t.Error("Has = true after Unregister")
	}
}

func TestRegistry_RegisterInvalidExpression(t *testing.T) {
	r := New(cron.NewEvaluator(), cron.SystemClock{}, func(store.Job) {})
	defer r.Close()

	job := testJob("not a schedule")
	if err := r.Register(job); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if r.Has(job.ID) {
		t.Error("invalid job must not enter the registry")
	}
}

func TestRegistry_RegisterInvalidTimezone(t *testing.T) {
	r := New(cron.NewEvaluator(), cron.SystemClock{}, func(store.Job) {})
	defer r.Close()

	job := testJob("0 0 * * *")
	job.Timezone = "Not/AZone"
	if err := r.Register(job); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestRegistry_RegisterReplacesTimer(t *testing.T) {
	r := New(cron.NewEvaluator(), cron.SystemClock{}, func(store.Job) {})
	defer r.Close()

	job := testJob("0 0 * * *")
	if err := r.Register(job); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	job.Expression = "30 12 * * *"
	if err := r.Register(job); err != nil {
		t.Fatalf("second register failed: %v", err)
	}

	if !r.Has(job.ID) {
		t.Error("Has = false after re-register")
	}
	if got := len(r.Snapshot()); got != 1 {
		t.Errorf("snapshot size = %d, want 1 (replace, not add)", got)
	}
}

func TestRegistry_TimerFires(t *testing.T) {
	// Clock pinned in the past: the computed firing instant is already
	// behind wall time, so the timer fires immediately.
	clock := fixedClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}

	var fired atomic.Int32
	r := New(cron.NewEvaluator(), clock, func(store.Job) {
		fired.Add(1)
	})
	defer r.Close()

	job := testJob("* * * * *")
	if err := r.Register(job); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Unregister(job.ID)

	if fired.Load() == 0 {
		t.Error("timer never fired")
	}
}

func TestRegistry_Close(t *testing.T) {
	r := New(cron.NewEvaluator(), cron.SystemClock{}, func(store.Job) {})

	for i := 0; i < 3; i++ {
		if err := r.Register(testJob("0 0 * * *")); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}
	r.Close()

	if got := len(r.Snapshot()); got != 0 {
		t.Errorf("snapshot size after Close = %d, want 0", got)
	}
}
