package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/floworks/flowgate/pkg/observability"
)

// RetentionSweeper purges audit events past the retention window on a cron
// schedule.
type RetentionSweeper struct {
	store     *DBLogger
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *observability.Logger
}

// NewRetentionSweeper creates a sweeper. schedule is a standard cron spec
// (e.g. "0 3 * * *" for daily at 03:00).
func NewRetentionSweeper(store *DBLogger, retention time.Duration, schedule string, logger *observability.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start schedules the sweep. It returns immediately; sweeps run on the cron
// goroutine.
func (s *RetentionSweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

func (s *RetentionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("audit retention sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("audit retention sweep completed")
	}
}
