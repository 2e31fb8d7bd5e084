package taskengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/oklog/ulid/v2"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

// CronRunner repeats a processing run on a cron schedule. A run that is still
// going when the next tick fires is not overlapped, the tick is rescheduled.
type CronRunner struct {
	scheduler gocron.Scheduler
	logger    logger.Logger

	mu   sync.RWMutex
	job  gocron.Job
	runs int
}

// NewCronRunner creates a new cron runner in UTC
func NewCronRunner(log logger.Logger) (*CronRunner, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	return &CronRunner{
		scheduler: scheduler,
		logger:    logger.EnsureLogger(log),
	}, nil
}

// Schedule registers fn under the cron expression. Only one job is kept,
// scheduling again replaces it.
func (c *CronRunner) Schedule(ctx context.Context, cronExpr string, fn func(ctx context.Context) error) error {
	if cronExpr == "" {
		return fmt.Errorf("empty cron expression")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job != nil {
		if err := c.scheduler.RemoveJob(c.job.ID()); err != nil {
			return fmt.Errorf("failed to remove previous job: %w", err)
		}
		c.job = nil
	}

	triggerFunc := func() {
		executionID := ulid.Make().String()
		c.logger.Info("cron trigger fired", "execution_id", executionID)

		if err := fn(ctx); err != nil {
			c.logger.Error("scheduled run failed", "execution_id", executionID, "error", err)
		}

		c.mu.Lock()
		c.runs++
		c.mu.Unlock()
	}

	job, err := c.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(triggerFunc),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule cron job %q: %w", cronExpr, err)
	}
	c.job = job

	return nil
}

func (c *CronRunner) Start() {
	c.scheduler.Start()

	if next, err := c.NextRun(); err == nil {
		c.logger.Info("cron runner started", "next_run", next.Format(time.RFC3339))
	}
}

// Stop shuts down the scheduler and waits for a running job to return
func (c *CronRunner) Stop() error {
	// not under c.mu, a running trigger takes it before returning
	if err := c.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown cron scheduler: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.job = nil
	return nil
}

func (c *CronRunner) NextRun() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.job == nil {
		return time.Time{}, fmt.Errorf("no job scheduled")
	}
	return c.job.NextRun()
}

// Runs is the number of finished triggers.
func (c *CronRunner) Runs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs
}

// Serve schedules fn, runs it on every tick until ctx is done, then stops.
func (c *CronRunner) Serve(ctx context.Context, cronExpr string, fn func(ctx context.Context) error) error {
	if err := c.Schedule(ctx, cronExpr, fn); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	c.logger.Info("stopping cron runner", "runs", c.Runs())
	return c.Stop()
}
