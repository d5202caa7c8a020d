package store

import (
	"strings"
	"testing"
	"time"
)

func validJob() *Job {
	return &Job{
		ID:             GenNewID(),
		Name:           "nightly-report",
		Expression:     "0 2 * * *",
		URL:            "https://api.example.com/reports/run",
		Method:         "POST",
		RetryBudget:    3,
		AttemptTimeout: 30 * time.Second,
	}
}

func TestValidateJob_Valid(t *testing.T) {
	if err := ValidateJob(validJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateJob_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"empty name", func(j *Job) { j.Name = "" }},
		{"whitespace name", func(j *Job) { j.Name = "   " }},
		{"name too long", func(j *Job) { j.Name = strings.Repeat("x", 256) }},
		{"bad method", func(j *Job) { j.Method = "FETCH" }},
		{"lowercase method", func(j *Job) { j.Method = "get" }},
		{"no scheme", func(j *Job) { j.URL = "example.com/hook" }},
		{"ftp scheme", func(j *Job) { j.URL = "ftp://example.com/hook" }},
		{"no host", func(j *Job) { j.URL = "https:///hook" }},
		{"zero retries", func(j *Job) { j.RetryBudget = 0 }},
		{"too many retries", func(j *Job) { j.RetryBudget = 11 }},
		{"timeout too short", func(j *Job) { j.AttemptTimeout = 500 * time.Millisecond }},
		{"timeout too long", func(j *Job) { j.AttemptTimeout = 6 * time.Minute }},
	}

	for _, tt := range tests {
		job := validJob()
		tt.mutate(job)
		if err := ValidateJob(job); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestValidateJob_Bounds(t *testing.T) {
	job := validJob()
	job.RetryBudget = MinRetryBudget
	job.AttemptTimeout = MinAttemptTimeout
	if err := ValidateJob(job); err != nil {
		t.Errorf("lower bounds rejected: %v", err)
	}

	job.RetryBudget = MaxRetryBudget
	job.AttemptTimeout = MaxAttemptTimeout
	if err := ValidateJob(job); err != nil {
		t.Errorf("upper bounds rejected: %v", err)
	}
}

func TestGenNewID_TimeOrdered(t *testing.T) {
	a := GenNewID()
	time.Sleep(2 * time.Millisecond)
	b := GenNewID()
	if a.String() >= b.String() {
		t.Errorf("IDs not time-ordered: %s then %s", a, b)
	}
}
