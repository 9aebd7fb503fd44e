package doctor

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
)

// Scheduler runs periodic health checks in serve mode.
type Scheduler struct {
	cron   *cron.Cron
	runner *HealthRunner
	logger *observability.Logger
}

// NewScheduler schedules the health runner on a cron expression
// (descriptors like "@every 15m" work too). An empty expression returns a
// nil scheduler, which Start and Stop tolerate.
func NewScheduler(expr string, runner *HealthRunner, logger *observability.Logger) (*Scheduler, error) {
	if expr == "" {
		return nil, nil
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &Scheduler{cron: cron.New(), runner: runner, logger: logger}
	if _, err := s.cron.AddFunc(expr, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error(ctx, "scheduled health run failed", "error", err)
		return
	}
	if report.Score < 100 {
		s.logger.Warn(ctx, "scheduled health run", "summary", report.Summary)
		return
	}
	s.logger.Info(ctx, "scheduled health run", "summary", report.Summary)
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	if s != nil {
		s.cron.Start()
	}
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s != nil {
		<-s.cron.Stop().Done()
	}
}
