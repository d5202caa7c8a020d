package controller

import (
	"time"

	"github.com/nextlevelbuilder/hookcron/internal/store"
)

// recentWindow is how many of the newest executions feed the streak and
// timeout counters.
const recentWindow = 10

// JobMetrics summarizes a job's last executions (up to 100, newest first).
type JobMetrics struct {
	TotalExecutions        int
	SuccessRate            float64
	FailureRate            float64
	AverageExecutionTimeMS float64
	RecentFailures         int
	RecentTimeouts         int

	// AttemptTimeoutMS is the job's per-attempt deadline, carried along so
	// the congestion rule can compare against it.
	AttemptTimeoutMS int64
}

// ComputeMetrics derives JobMetrics from executions ordered by startedAt
// descending. With no history the job is treated as healthy
// (successRate 1, failureRate 0).
func ComputeMetrics(execs []store.Execution, attemptTimeout time.Duration) JobMetrics {
	m := JobMetrics{
		TotalExecutions:  len(execs),
		SuccessRate:      1,
		AttemptTimeoutMS: attemptTimeout.Milliseconds(),
	}
	if len(execs) == 0 {
		return m
	}

	var successes, failures int
	var durationSum int64
	var durationCount int
	for _, e := range execs {
		switch e.Status {
		case store.ExecutionSuccess:
			successes++
		case store.ExecutionFailed:
			failures++
		}
		if e.DurationMS > 0 {
			durationSum += e.DurationMS
			durationCount++
		}
	}

	n := float64(len(execs))
	m.SuccessRate = float64(successes) / n
	m.FailureRate = float64(failures) / n
	if durationCount > 0 {
		m.AverageExecutionTimeMS = float64(durationSum) / float64(durationCount)
	}

	timeoutMS := attemptTimeout.Milliseconds()
	recent := execs
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}
	for _, e := range recent {
		if e.Status == store.ExecutionFailed {
			m.RecentFailures++
		}
		if timeoutMS > 0 && e.DurationMS >= timeoutMS {
			m.RecentTimeouts++
		}
	}
	return m
}
