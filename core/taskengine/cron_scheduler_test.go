package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronRunnerSchedule(t *testing.T) {
	runner, err := NewCronRunner(nil)
	require.NoError(t, err)

	err = runner.Schedule(context.Background(), "*/5 * * * *", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	runner.Start()
	defer runner.Stop()

	next, err := runner.NextRun()
	require.NoError(t, err)
	assert.True(t, next.After(time.Now().Add(-time.Second)))
	assert.True(t, next.Before(time.Now().Add(5*time.Minute+time.Second)))
}

func TestCronRunnerRejectsBadExpression(t *testing.T) {
	runner, err := NewCronRunner(nil)
	require.NoError(t, err)

	assert.Error(t, runner.Schedule(context.Background(), "", nil))
	assert.Error(t, runner.Schedule(context.Background(), "every tuesday", func(ctx context.Context) error { return nil }))

	_, err = runner.NextRun()
	assert.Error(t, err)
}

func TestCronRunnerServeStopsOnCancel(t *testing.T) {
	runner, err := NewCronRunner(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Serve(ctx, "0 0 1 1 *", func(ctx context.Context) error { return nil })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, runner.Runs())
}
