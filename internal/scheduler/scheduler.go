package scheduler

import (
	"context"
	"time"

	"rental-service/internal/service"
	"rental-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the lifecycle sweep on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	sweeper *service.Sweeper
	logger  *zap.Logger
}

// NewScheduler creates a scheduler with the sweep registered at the given
// cron spec (seconds precision, UTC)
func NewScheduler(sweeper *service.Sweeper, spec string) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron:    c,
		sweeper: sweeper,
		logger:  util.GetLogger(),
	}

	if _, err := c.AddFunc(spec, s.runSweep); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return
	}

	s.logger.Info("Scheduled sweep done",
		zap.Int("orders_activated", summary.OrdersActivated),
		zap.Int("orders_completed", summary.OrdersCompleted),
		zap.Int("errors", summary.Errors))
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting sweep scheduler")
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for a running sweep
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping sweep scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}
