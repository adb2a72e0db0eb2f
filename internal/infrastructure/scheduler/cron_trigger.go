package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ParseCronSchedule parses a daily cron expression "minute hour * * *" into
// its hour and minute. An empty expression yields 01:00.
func ParseCronSchedule(cronExpr string) (hour, minute int, err error) {
	hour, minute = 1, 0

	parts := strings.Fields(cronExpr)
	if len(parts) == 0 {
		return hour, minute, nil
	}
	if len(parts) != 5 {
		return 0, 0, fmt.Errorf("%w: cron expression %q must have 5 fields", ErrInvalidConfig, cronExpr)
	}
	for _, field := range parts[2:] {
		if field != "*" {
			return 0, 0, fmt.Errorf("%w: only daily schedules are supported, got %q", ErrInvalidConfig, cronExpr)
		}
	}

	if minute, err = parseField(parts[0], 59); err != nil {
		return 0, 0, fmt.Errorf("%w: minute: %v", ErrInvalidConfig, err)
	}
	if hour, err = parseField(parts[1], 23); err != nil {
		return 0, 0, fmt.Errorf("%w: hour: %v", ErrInvalidConfig, err)
	}
	return hour, minute, nil
}

func parseField(s string, max int) (int, error) {
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if val < 0 || val > max {
		return 0, fmt.Errorf("must be 0-%d, got %d", max, val)
	}
	return val, nil
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	Hour   int
	Minute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
	// Location is the zone the schedule and run date are evaluated in
	Location *time.Location
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		Hour:          1,
		Minute:        0,
		CheckInterval: time.Minute,
		Location:      time.Local,
	}
}

// CronTrigger submits one job of its kind per day at the configured time
type CronTrigger struct {
	config    CronTriggerConfig
	kind      JobKind
	scheduler *Scheduler
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, kind JobKind, scheduler *Scheduler, logger *zap.Logger) *CronTrigger {
	def := DefaultCronTriggerConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	return &CronTrigger{
		config:    config,
		kind:      kind,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.String("kind", string(c.kind)),
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped", zap.String("kind", string(c.kind)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits today's job once the scheduled minute has been
// reached. A trigger that starts after the scheduled time still runs that day.
func (c *CronTrigger) checkAndTrigger() bool {
	now := c.now().In(c.config.Location)
	currentDate := now.Format("2006-01-02")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRunDate == currentDate {
		return false
	}
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, c.config.Location)
	if now.Before(scheduled) {
		return false
	}

	if _, err := c.scheduler.Schedule(c.kind, now); err != nil {
		c.logger.Error("Failed to schedule job", zap.String("kind", string(c.kind)), zap.Error(err))
		return false
	}
	c.lastRunDate = currentDate
	c.logger.Info("Scheduled daily job", zap.String("kind", string(c.kind)), zap.String("date", currentDate))
	return true
}

// TriggerNow submits a job immediately, outside the daily schedule
func (c *CronTrigger) TriggerNow() (*Job, error) {
	return c.scheduler.Schedule(c.kind, c.now().In(c.config.Location))
}

// NextRun returns the time of the next pending run. A time in the past means
// today's run is due and will be submitted on the next check.
func (c *CronTrigger) NextRun() time.Time {
	now := c.now().In(c.config.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, c.config.Location)

	c.mu.Lock()
	ranToday := c.lastRunDate == now.Format("2006-01-02")
	c.mu.Unlock()
	if ranToday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
