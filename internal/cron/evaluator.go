// Package cron evaluates 5-field cron expressions (minute, hour, day-of-month,
// month, day-of-week) using gronx. The evaluator is pure: callers pass "now"
// in through a Clock so tests can inject time.
package cron

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	lru "github.com/hashicorp/golang-lru/v2"
)

// locationCacheSize bounds the parsed-timezone cache. A tenant population
// rarely spans more than a few dozen zones.
const locationCacheSize = 64

// Clock abstracts time.Now so schedule computation is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ParseError reports an invalid cron expression or timezone with a
// human-readable message.
type ParseError struct {
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %s", e.Expression, e.Reason)
}

// ValidationResult carries the next two firings of a valid expression,
// evaluated in UTC from the reference instant.
type ValidationResult struct {
	Expression   string    `json:"expression"`
	FirstFiring  time.Time `json:"firstFiring"`
	SecondFiring time.Time `json:"secondFiring"`
}

// Evaluator parses expressions and computes firing instants.
type Evaluator struct {
	gx   *gronx.Gronx
	locs *lru.Cache[string, *time.Location]
}

// NewEvaluator creates an evaluator with a shared timezone cache.
func NewEvaluator() *Evaluator {
	locs, _ := lru.New[string, *time.Location](locationCacheSize)
	return &Evaluator{gx: gronx.New(), locs: locs}
}

// Validate checks an expression and returns its next two firings after ref.
func (e *Evaluator) Validate(expr string, ref time.Time) (*ValidationResult, error) {
	if !e.gx.IsValid(expr) {
		return nil, &ParseError{Expression: expr, Reason: "expected 5 whitespace-separated fields"}
	}
	first, err := gronx.NextTickAfter(expr, ref, false)
	if err != nil {
		return nil, &ParseError{Expression: expr, Reason: err.Error()}
	}
	second, err := gronx.NextTickAfter(expr, first, false)
	if err != nil {
		return nil, &ParseError{Expression: expr, Reason: err.Error()}
	}
	return &ValidationResult{Expression: expr, FirstFiring: first, SecondFiring: second}, nil
}

// Next returns the next firing of expr strictly after the given instant,
// interpreted in the named IANA timezone. An empty timezone means UTC.
func (e *Evaluator) Next(expr, timezone string, after time.Time) (time.Time, error) {
	loc, err := e.location(timezone)
	if err != nil {
		return time.Time{}, err
	}
	next, err := gronx.NextTickAfter(expr, after.In(loc), false)
	if err != nil {
		return time.Time{}, &ParseError{Expression: expr, Reason: err.Error()}
	}
	return next, nil
}

func (e *Evaluator) location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, ok := e.locs.Get(name); ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ParseError{Expression: name, Reason: "unknown timezone"}
	}
	e.locs.Add(name, loc)
	return loc, nil
}
