package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	MinRetryBudget = 1
	MaxRetryBudget = 10

	MinAttemptTimeout = 1 * time.Second
	MaxAttemptTimeout = 5 * time.Minute

	// MaxNameLength matches the VARCHAR(255) constraint in the schema.
	MaxNameLength = 255
)

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// ValidateJob checks the invariants every job row must satisfy before it is
// persisted or registered. The cron expression itself is validated separately
// by the evaluator.
func ValidateJob(job *Job) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if len(job.Name) > MaxNameLength {
		return fmt.Errorf("job name too long: %d chars (max %d)", len(job.Name), MaxNameLength)
	}
	if !allowedMethods[job.Method] {
		return fmt.Errorf("unsupported HTTP method %q", job.Method)
	}
	u, err := url.Parse(job.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid target URL %q", job.URL)
	}
	if job.RetryBudget < MinRetryBudget || job.RetryBudget > MaxRetryBudget {
		return fmt.Errorf("retry budget %d out of range [%d, %d]", job.RetryBudget, MinRetryBudget, MaxRetryBudget)
	}
	if job.AttemptTimeout < MinAttemptTimeout || job.AttemptTimeout > MaxAttemptTimeout {
		return fmt.Errorf("attempt timeout %s out of range [%s, %s]", job.AttemptTimeout, MinAttemptTimeout, MaxAttemptTimeout)
	}
	return nil
}
