package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler periodically sweeps every enabled mapping. Overlap with manual
// runs is safe: the per-mapping run lock makes a second start a clean skip.
type Scheduler struct {
	cron   *cron.Cron
	sync   SyncService
	logger *zap.Logger
}

// NewScheduler creates a scheduler. It does nothing until Start.
func NewScheduler(sync SyncService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		sync:   sync,
		logger: logger.Named("scheduler"),
	}
}

// Start registers the sweep on the given cron expression and starts the
// scheduler. An empty expression disables scheduling entirely.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		return nil
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.sync.SyncAllEnabled(context.Background()); err != nil {
			s.logger.Error("Scheduled sync sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Sync scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
