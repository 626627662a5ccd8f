package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campusiq/gatehouse/pkg/observability"
)

// Sweeper prunes audit records past the retention horizon on a nightly
// schedule.
type Sweeper struct {
	logger        *DBLogger
	retentionDays int
	log           *observability.Logger
	cron          *cron.Cron
}

func NewSweeper(logger *DBLogger, retentionDays int, log *observability.Logger) *Sweeper {
	return &Sweeper{
		logger:        logger,
		retentionDays: retentionDays,
		log:           log,
		cron:          cron.New(),
	}
}

// Start schedules the nightly sweep. A retention of zero or less disables
// pruning entirely.
func (s *Sweeper) Start() error {
	if s.retentionDays <= 0 {
		s.log.Info("audit retention sweep disabled")
		return nil
	}
	_, err := s.cron.AddFunc("15 3 * * *", func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			s.log.WithError(err).Error("audit retention sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// SweepOnce prunes immediately and returns the number of records removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	removed, err := s.logger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.WithFields(map[string]interface{}{
			"removed": removed,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("pruned audit trail")
	}
	return removed, nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
