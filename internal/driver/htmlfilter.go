package driver

import "strings"

// FilterBody decides whether a response body may be persisted. The execution
// log UI renders stored bodies, so anything that looks like an HTML document
// is dropped (stored as null) to keep attacker-controlled markup out of the
// database. This runs once, at write time.
//
// A body is deemed HTML when, after trimming leading whitespace, it starts
// with "<!DOCTYPE" or "<html" (any case), or starts with "<" and contains a
// closing "</html>" tag later.
func FilterBody(body string) *string {
	if body == "" {
		return nil
	}

	trimmed := strings.TrimLeft(body, " \t\r\n")
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "<!doctype"):
		return nil
	case strings.HasPrefix(lower, "<html"):
		return nil
	case strings.HasPrefix(lower, "<") && strings.Contains(lower, "</html>"):
		return nil
	}

	return &body
}
