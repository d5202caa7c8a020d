package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ConcurrencyLimit(t *testing.T) {
	p := New(Config{Concurrency: 2})
	p.Start()
	defer shutdown(p)

	var active atomic.Int32
	var maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		err := p.Submit(func(context.Context) {
			defer wg.Done()
			cur := active.Add(1)

			for {
				old := maxActive.Load()
				if cur <= old || maxActive.CompareAndSwap(old, cur) {
					break
				}
			}

			time.Sleep(50 * time.Millisecond)
			active.Add(-1)
		}, false)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	wg.Wait()

	if m := maxActive.Load(); m > 2 {
		t.Errorf("max active = %d, want <= 2", m)
	}
	if m := maxActive.Load(); m < 2 {
		t.Errorf("max active = %d, want >= 2 (should use full concurrency)", m)
	}
}

func TestPool_ManualJumpsQueue(t *testing.T) {
	p := New(Config{Concurrency: 1})
	p.Start()
	defer shutdown(p)

	// Occupy the single worker so subsequent submissions queue up.
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func(context.Context) {
		close(started)
		<-release
	}, false)
	<-started

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	record := func(name string) Task {
		return func(context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	wg.Add(3)
	p.Submit(record("scheduled-1"), false)
	p.Submit(record("scheduled-2"), false)
	p.Submit(record("manual"), true)

	close(release)
	wg.Wait()

	if len(order) != 3 || order[0] != "manual" {
		t.Errorf("execution order = %v, want manual first", order)
	}
}

func TestPool_QueueOverflow(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueBound: 2})
	p.Start()
	defer shutdown(p)

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func(context.Context) {
		close(started)
		<-release
	}, false)
	<-started

	if err := p.Submit(func(context.Context) {}, false); err != nil {
		t.Fatalf("first queued submit failed: %v", err)
	}
	if err := p.Submit(func(context.Context) {}, false); err != nil {
		t.Fatalf("second queued submit failed: %v", err)
	}
	if err := p.Submit(func(context.Context) {}, false); err != ErrQueueOverflow {
		t.Errorf("error = %v, want ErrQueueOverflow", err)
	}

	close(release)
}

func TestPool_Stats(t *testing.T) {
	p := New(Config{Concurrency: 3})
	p.Start()
	defer shutdown(p)

	stats := p.Stats()
	if stats.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", stats.Concurrency)
	}
	if stats.Active != 0 {
		t.Errorf("active = %d, want 0", stats.Active)
	}
	if stats.Pending != 0 {
		t.Errorf("pending = %d, want 0", stats.Pending)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(Config{Concurrency: 1})
	p.Start()
	shutdown(p)

	if err := p.Submit(func(context.Context) {}, false); err != ErrShuttingDown {
		t.Errorf("error = %v, want ErrShuttingDown", err)
	}
}

func TestPool_ShutdownWaitsForActive(t *testing.T) {
	p := New(Config{Concurrency: 1})
	p.Start()

	var finished atomic.Bool
	started := make(chan struct{})
	p.Submit(func(context.Context) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	}, false)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if !finished.Load() {
		t.Error("shutdown returned before the active task finished")
	}
}

func TestPool_ShutdownCancelsOnDeadline(t *testing.T) {
	p := New(Config{Concurrency: 1})
	p.Start()

	var cancelled atomic.Bool
	started := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}, false)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	if !cancelled.Load() {
		t.Error("active task was not cancelled after the drain deadline")
	}
}

func shutdown(p *Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Shutdown(ctx)
}
