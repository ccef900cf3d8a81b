// Package schedule parses the spec's "every <N><unit>" schedule string and
// computes the next fire time. Both functions are pure (spec.md §4.A).
package schedule

import (
	"strconv"
	"strings"
	"time"
)

var multipliers = map[byte]int{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 7 * 86400,
}

// Parse validates the raw "schedule" value from a spec and, when present,
// returns the period in seconds. Absent/nil schedule returns (nil, nil)
// with no errors — scheduling is optional.
func Parse(raw any, present bool) (period *int, errs []string) {
	if !present || raw == nil {
		return nil, nil
	}

	s, ok := raw.(string)
	if !ok {
		return nil, []string{"Schedule should be a string"}
	}

	s = strings.TrimSpace(s)
	const prefix = "every "
	if !strings.HasPrefix(s, prefix) {
		return nil, []string{"Schedule should start with 'every'"}
	}
	s = s[len(prefix):]
	if s == "" {
		return nil, []string{"Bad time unit for schedule, only s/m/h/d/w are allowed"}
	}

	unit := s[len(s)-1]
	multiplier, ok := multipliers[unit]
	if !ok {
		return nil, []string{"Bad time unit for schedule, only s/m/h/d/w are allowed"}
	}

	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return nil, []string{"Failed to parse time number"}
	}

	amount := n * multiplier
	if amount < 60 {
		return nil, []string{"Can't schedule tasks for less than one minute"}
	}
	return &amount, nil
}

// CalculateNext advances "current" by whole multiples of "period" while it
// remains before "now", returning the first value >= now. A nil period
// means "no schedule" and always yields nil. A nil current starts the
// schedule at now+period (spec.md §4.A).
func CalculateNext(current *time.Time, period *int, now time.Time) *time.Time {
	if period == nil {
		return nil
	}
	step := time.Duration(*period) * time.Second

	if current == nil {
		next := now.Add(step)
		return &next
	}

	next := *current
	if next.Before(now) {
		diff := now.Sub(next)
		steps := int64(diff / step)
		next = next.Add(time.Duration(steps) * step)
		for next.Before(now) {
			next = next.Add(step)
		}
	}
	return &next
}
