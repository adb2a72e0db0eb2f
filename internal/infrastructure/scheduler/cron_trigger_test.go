package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCronSchedule(t *testing.T) {
	tests := []struct {
		name         string
		cronExpr     string
		expectedHour int
		expectedMin  int
	}{
		{"Default 1am", "0 1 * * *", 1, 0},
		{"3:30am", "30 3 * * *", 3, 30},
		{"Midnight", "0 0 * * *", 0, 0},
		{"11:59pm", "59 23 * * *", 23, 59},
		{"Empty string defaults", "", 1, 0},
		{"Extra whitespace", "  15   4   *   *   *  ", 4, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := ParseCronSchedule(tt.cronExpr)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedHour, hour, "hour mismatch")
			assert.Equal(t, tt.expectedMin, minute, "minute mismatch")
		})
	}

	invalid := []string{"0 1", "60 1 * * *", "0 24 * * *", "a 1 * * *", "0 1 * * 1", "*/5 * * * *"}
	for _, expr := range invalid {
		t.Run("rejects "+expr, func(t *testing.T) {
			_, _, err := ParseCronSchedule(expr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func newTestTrigger(t *testing.T, clock *time.Time) (*CronTrigger, *Scheduler) {
	t.Helper()
	s := newTestScheduler(t, SchedulerConfig{QueueSize: 10})
	s.Register(JobKindOverdueSweep, JobExecutorFunc(func(context.Context, *Job) error { return nil }))
	require.NoError(t, s.Start(context.Background()))

	c := NewCronTrigger(CronTriggerConfig{Hour: 1, Minute: 30, Location: time.UTC}, JobKindOverdueSweep, s, zap.NewNop())
	c.now = func() time.Time { return *clock }
	return c, s
}

func TestCronTrigger_RunsOncePerDay(t *testing.T) {
	clock := time.Date(2024, time.June, 1, 1, 29, 0, 0, time.UTC)
	c, _ := newTestTrigger(t, &clock)

	assert.False(t, c.checkAndTrigger(), "before the scheduled minute")
	assert.Equal(t, time.Date(2024, time.June, 1, 1, 30, 0, 0, time.UTC), c.NextRun())

	clock = clock.Add(time.Minute)
	assert.True(t, c.checkAndTrigger())
	assert.False(t, c.checkAndTrigger(), "already ran today")
	assert.Equal(t, time.Date(2024, time.June, 2, 1, 30, 0, 0, time.UTC), c.NextRun())

	clock = time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)
	assert.True(t, c.checkAndTrigger(), "a late check still runs that day")
}

func TestCronTrigger_TriggerNow(t *testing.T) {
	clock := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestTrigger(t, &clock)

	job, err := c.TriggerNow()
	require.NoError(t, err)
	assert.Equal(t, JobKindOverdueSweep, job.Kind)
	assert.Equal(t, clock, job.RunDate)
}

func TestCronTrigger_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, zap.NewNop())
	c := NewCronTrigger(CronTriggerConfig{CheckInterval: time.Millisecond}, JobKindOverdueSweep, s, zap.NewNop())

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}
