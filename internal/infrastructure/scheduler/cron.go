package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"BriefingScanner/internal/ports"
)

// CronScheduler runs the daily job on a cron expression evaluated in a
// fixed timezone.
type CronScheduler struct {
	spec      string
	loc       *time.Location
	immediate bool
	logger    *slog.Logger

	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler from a cron expression. When
// immediate is set the job also fires once right after Start.
func NewCronScheduler(spec string, loc *time.Location, immediate bool, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &CronScheduler{
		spec:      spec,
		loc:       loc,
		immediate: immediate,
		logger:    logger,
	}
}

// Start registers the job and begins the cron loop.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("scheduler needs a job")
	}
	if c.cron != nil {
		return nil
	}

	runner := cron.New(cron.WithLocation(c.loc))
	if _, err := runner.AddFunc(c.spec, func() {
		job(time.Now().In(c.loc))
	}); err != nil {
		return fmt.Errorf("register schedule %q: %w", c.spec, err)
	}

	c.cron = runner
	runner.Start()
	c.logger.Info("scheduler started", "spec", c.spec, "timezone", c.loc.String())

	if c.immediate {
		go job(time.Now().In(c.loc))
	}
	return nil
}

// Stop halts the cron loop and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c == nil || c.cron == nil {
		return nil
	}

	done := c.cron.Stop()
	c.cron = nil

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
