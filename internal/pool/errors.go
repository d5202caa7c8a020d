package pool

import "errors"

var (
	// ErrQueueOverflow is returned when admission is refused under a bounded
	// queue. The firing is not recovered and no execution row is written.
	ErrQueueOverflow = errors.New("worker pool queue overflow")

	// ErrShuttingDown is returned for admissions after shutdown began.
	ErrShuttingDown = errors.New("worker pool shutting down")
)
