// services/scheduler.go
package services

import (
	"context"
	"time"

	"devquest/logger"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler runs the progression sweep every interval. The returned
// scheduler must be shut down by the caller.
func StartScheduler(ctx context.Context, progression *ProgressionService, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			users, unlocked, err := progression.Sweep(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("[Scheduler] progress sweep failed")
				return
			}
			logger.Info().
				Int("users", users).
				Int("badges_unlocked", unlocked).
				Dur("took", time.Since(start)).
				Msg("[Scheduler] progress sweep done")
		}),
		gocron.WithName("progress-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
