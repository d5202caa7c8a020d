// Package pool is the bounded-concurrency dispatcher between timers and the
// execution driver. Manual invocations take priority over scheduled firings;
// within a priority class the queue is FIFO.
package pool

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work admitted into the pool.
type Task func(ctx context.Context)

// Stats is the pool's observable state for metrics.
type Stats struct {
	Pending     int `json:"pending"`
	Active      int `json:"active"`
	Concurrency int `json:"concurrency"`
}

// Config sizes the pool.
type Config struct {
	// Concurrency is the number of workers (default 10).
	Concurrency int
	// QueueBound caps the total queued tasks; 0 means unbounded. When the
	// bound is hit, admission fails with ErrQueueOverflow and the firing is
	// dropped.
	QueueBound int
}

// Pool runs tasks on a fixed set of workers.
type Pool struct {
	cfg Config

	mu        sync.Mutex
	cond      *sync.Cond
	manual    []Task
	scheduled []Task
	active    int
	closed    bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a stopped pool; call Start before submitting.
func New(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	p := &Pool{cfg: cfg}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers.
func (p *Pool) Start() {
	p.runCtx, p.runCancel = context.WithCancel(context.Background())
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	slog.Info("worker pool started", "concurrency", p.cfg.Concurrency)
}

// Submit admits a task. manual=true jumps the scheduled queue. Admission is
// non-blocking: timer callbacks must never stall on the pool.
func (p *Pool) Submit(task Task, manual bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrShuttingDown
	}
	if p.cfg.QueueBound > 0 && len(p.manual)+len(p.scheduled) >= p.cfg.QueueBound {
		slog.Warn("worker pool queue overflow, firing dropped", "pending", len(p.manual)+len(p.scheduled))
		return ErrQueueOverflow
	}

	if manual {
		p.manual = append(p.manual, task)
	} else {
		p.scheduled = append(p.scheduled, task)
	}
	p.cond.Signal()
	return nil
}

// Stats returns the current queue depth, active workers, and concurrency.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Pending:     len(p.manual) + len(p.scheduled),
		Active:      p.active,
		Concurrency: p.cfg.Concurrency,
	}
}

// Shutdown drains the pool: no new admissions, queued tasks are discarded,
// active tasks get until ctx's deadline before being cancelled.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	dropped := len(p.manual) + len(p.scheduled)
	p.manual = nil
	p.scheduled = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if dropped > 0 {
		slog.Info("worker pool shutdown, queued firings dropped", "dropped", dropped)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("worker pool drain deadline reached, cancelling active tasks")
		p.runCancel()
		<-done
	}
	p.runCancel()
	slog.Info("worker pool stopped")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		task(p.runCtx)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// next blocks for the highest-priority queued task. Returns false when the
// pool is closed and both queues are empty.
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.manual) == 0 && len(p.scheduled) == 0 && !p.closed {
		p.cond.Wait()
	}

	var task Task
	switch {
	case len(p.manual) > 0:
		task = p.manual[0]
		p.manual = p.manual[1:]
	case len(p.scheduled) > 0:
		task = p.scheduled[0]
		p.scheduled = p.scheduled[1:]
	default:
		return nil, false
	}

	p.active++
	return task, true
}
