package cron

import (
	"math"
	"strconv"
	"strings"
)

// ExtendInterval stretches the minute field of a 5-field expression by the
// given factor. Two forms are rewritten:
//
//	"5 * * * *"   factor 2   → "10 * * * *"   (numeric minute)
//	"*/5 * * * *" factor 2   → "*/10 * * * *" (step form)
//
// Any other minute field (lists, ranges, "*") is left untouched and the
// second return value is false. The rewritten value is floored and never
// drops below 1.
func ExtendInterval(expr string, factor float64) (string, bool) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr, false
	}

	minute := fields[0]
	switch {
	case isNumeric(minute):
		m, _ := strconv.Atoi(minute)
		fields[0] = strconv.Itoa(scale(m, factor))

	case strings.HasPrefix(minute, "*/") && isNumeric(minute[2:]):
		s, _ := strconv.Atoi(minute[2:])
		fields[0] = "*/" + strconv.Itoa(scale(s, factor))

	default:
		return expr, false
	}

	rewritten := strings.Join(fields, " ")
	return rewritten, rewritten != expr
}

func scale(v int, factor float64) int {
	return int(math.Floor(math.Max(1, float64(v)*factor)))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
