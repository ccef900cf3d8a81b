// Package scheduler implements spec.md §4.E's periodic re-submission loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/datopian/flowmanager/repository"
	"github.com/datopian/flowmanager/usecase"
)

// Loop re-submits every dataset whose schedule has come due, on a
// minute-granular tick advanced in 5s sleep steps (spec.md §4.E).
type Loop struct {
	datasets   repository.DatasetRepository
	submission *usecase.SubmissionService

	tickInterval time.Duration
	sleepStep    time.Duration

	logger *slog.Logger
}

func NewLoop(
	datasets repository.DatasetRepository,
	submission *usecase.SubmissionService,
	tickInterval, sleepStep time.Duration,
	logger *slog.Logger,
) *Loop {
	return &Loop{
		datasets:     datasets,
		submission:   submission,
		tickInterval: tickInterval,
		sleepStep:    sleepStep,
		logger:       logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled. Each iteration snapshots base,
// processes every dataset due by base, then advances base by
// tickInterval and sleeps toward it in sleepStep increments so
// cancellation is checked cooperatively rather than via a single long
// timer (spec.md §4.E step 3).
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("scheduler loop started", "tick_interval", l.tickInterval, "sleep_step", l.sleepStep)

	base := time.Now()
	for {
		l.processExpired(ctx, base)

		base = base.Add(l.tickInterval)
		for time.Now().Before(base) {
			select {
			case <-ctx.Done():
				l.logger.Info("scheduler loop shut down")
				return
			case <-time.After(l.sleepStep):
			}
		}

		select {
		case <-ctx.Done():
			l.logger.Info("scheduler loop shut down")
			return
		default:
		}
	}
}

func (l *Loop) processExpired(ctx context.Context, base time.Time) {
	expired, err := l.datasets.GetExpiredDatasets(ctx, base)
	if err != nil {
		l.logger.Error("get expired datasets", "error", err)
		return
	}

	for _, dataset := range expired {
		owner, ok := dataset.Spec.OwnerID()
		if !ok {
			owner = dataset.Owner
		}

		_, flowID, errs := l.submission.ScheduledUpload(ctx, owner, dataset.Spec)
		if len(errs) > 0 {
			l.logger.Error("scheduled re-submission failed",
				"dataset_id", dataset.Identifier, "errors", errs)
			continue
		}
		l.logger.Info("scheduled re-submission dispatched",
			"dataset_id", dataset.Identifier, "flow_id", flowID)
	}
}
