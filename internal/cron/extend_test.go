package cron

import (
	"testing"
	"time"
)

func TestExtendInterval(t *testing.T) {
	tests := []struct {
		expr    string
		factor  float64
		want    string
		changed bool
	}{
		{"5 * * * *", 2.0, "10 * * * *", true},
		{"*/5 * * * *", 2.0, "*/10 * * * *", true},
		{"*/10 * * * *", 1.5, "*/15 * * * *", true},
		{"*/5 * * * *", 1.2, "*/6 * * * *", true},
		{"0 * * * *", 2.0, "1 * * * *", true},   // floored to at least 1
		{"*/7 * * * *", 1.1, "*/7 * * * *", false}, // floor(7.7)=7, no change
		{"* * * * *", 2.0, "* * * * *", false},
		{"1,15,30 * * * *", 2.0, "1,15,30 * * * *", false},
		{"1-5 * * * *", 2.0, "1-5 * * * *", false},
		{"garbage", 2.0, "garbage", false},
	}

	for _, tt := range tests {
		got, changed := ExtendInterval(tt.expr, tt.factor)
		if got != tt.want || changed != tt.changed {
			t.Errorf("ExtendInterval(%q, %v) = (%q, %v), want (%q, %v)",
				tt.expr, tt.factor, got, changed, tt.want, tt.changed)
		}
	}
}

func TestExtendInterval_RewrittenStaysValid(t *testing.T) {
	eval := NewEvaluator()

	for _, expr := range []string{"5 * * * *", "*/5 * * * *", "*/20 * * * *"} {
		rewritten, changed := ExtendInterval(expr, 2.0)
		if !changed {
			t.Fatalf("ExtendInterval(%q) did not rewrite", expr)
		}
		if _, err := eval.Validate(rewritten, time.Now()); err != nil {
			t.Errorf("rewritten %q from %q does not parse: %v", rewritten, expr, err)
		}
	}
}
