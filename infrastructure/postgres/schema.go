package postgres

import (
	"time"

	"github.com/datopian/flowmanager/schedule"
)

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

// scheduleNext wraps schedule.CalculateNext for repository callers that
// only have the raw period in hand (spec.md §4.A).
func scheduleNext(current *time.Time, period *int, now time.Time) *time.Time {
	return schedule.CalculateNext(current, period, now)
}
