package schedule_test

import (
	"testing"
	"time"

	"github.com/datopian/flowmanager/schedule"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        any
		present    bool
		wantPeriod *int
		wantErr    bool
	}{
		{"absent schedule is fine", nil, false, nil, false},
		{"explicit nil is fine", nil, true, nil, false},
		{"non-string value", 42, true, nil, true},
		{"missing every prefix", "hourly", true, nil, true},
		{"bad unit", "every 5x", true, nil, true},
		{"non-numeric amount", "every nnh", true, nil, true},
		{"below one minute", "every 30s", true, nil, true},
		{"one minute exactly", "every 1m", true, intPtr(60), false},
		{"one hour", "every 1h", true, intPtr(3600), false},
		{"two days", "every 2d", true, intPtr(2 * 86400), false},
		{"one week", "every 1w", true, intPtr(7 * 86400), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, errs := schedule.Parse(tt.raw, tt.present)
			if tt.wantErr {
				if len(errs) == 0 {
					t.Fatalf("expected errors, got none")
				}
				return
			}
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if !equalIntPtr(period, tt.wantPeriod) {
				t.Fatalf("period = %v, want %v", deref(period), deref(tt.wantPeriod))
			}
		})
	}
}

func TestCalculateNext(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	t.Run("nil period means no schedule", func(t *testing.T) {
		if got := schedule.CalculateNext(nil, nil, now); got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})

	t.Run("nil current starts one period from now", func(t *testing.T) {
		period := 3600
		got := schedule.CalculateNext(nil, &period, now)
		want := now.Add(time.Hour)
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("current already in the future is untouched", func(t *testing.T) {
		period := 3600
		current := now.Add(30 * time.Minute)
		got := schedule.CalculateNext(&current, &period, now)
		if !got.Equal(current) {
			t.Fatalf("got %v, want %v", got, current)
		}
	})

	t.Run("behind schedule skips missed ticks to the first slot at/after now", func(t *testing.T) {
		period := 3600
		current := now.Add(-150 * time.Minute) // 2.5 periods behind
		got := schedule.CalculateNext(&current, &period, now)
		if got.Before(now) {
			t.Fatalf("result %v is still before now %v", got, now)
		}
		if got.Sub(current)%time.Hour != 0 {
			t.Fatalf("result %v is not a whole multiple of the period past %v", got, current)
		}
	})
}

func intPtr(n int) *int { return &n }

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
