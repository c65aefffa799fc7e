// workers/project_counter_worker.go
package workers

import (
	"context"
	"time"

	"devquest/logger"
)

// CounterSyncer recounts stored task counters. services.ProjectService
// implements it.
type CounterSyncer interface {
	SyncAllCounters(ctx context.Context) (int, error)
}

// ProjectCounterWorker periodically recounts every project's task counters
// from the task table.
type ProjectCounterWorker struct {
	syncer   CounterSyncer
	interval time.Duration
}

func NewProjectCounterWorker(syncer CounterSyncer, interval time.Duration) *ProjectCounterWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ProjectCounterWorker{syncer: syncer, interval: interval}
}

func (w *ProjectCounterWorker) Start(ctx context.Context) {
	logger.Info().Dur("interval", w.interval).Msg("starting project counter worker")
	go w.run(ctx)
}

func (w *ProjectCounterWorker) run(ctx context.Context) {
	w.syncOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.syncOnce(ctx)
		case <-ctx.Done():
			logger.Info().Msg("project counter worker stopped")
			return
		}
	}
}

func (w *ProjectCounterWorker) syncOnce(ctx context.Context) {
	fixed, err := w.syncer.SyncAllCounters(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("[COUNTERS] sync failed")
		}
		return
	}
	if fixed > 0 {
		logger.Warn().Int("projects", fixed).Msg("[COUNTERS] repaired drifted task counters")
	}
}
