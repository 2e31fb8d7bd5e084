package backup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piggyclaim/piggyclaim/core/testutil"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

func TestPeriodicBackup(t *testing.T) {
	service := NewService(testutil.GetLogger(), testutil.MustDB(t), t.TempDir())

	require.NoError(t, service.StartPeriodicBackup(time.Hour))
	assert.True(t, service.backupEnabled)

	assert.Error(t, service.StartPeriodicBackup(time.Hour), "starting twice")

	service.StopPeriodicBackup()
	assert.False(t, service.backupEnabled)

	// stopping again is a no-op
	service.StopPeriodicBackup()

	// and it can be started again
	require.NoError(t, service.StartPeriodicBackup(time.Hour))
	service.StopPeriodicBackup()
}

func TestPeriodicBackupRejectsZeroInterval(t *testing.T) {
	service := NewService(nil, testutil.MustDB(t), t.TempDir())
	assert.Error(t, service.StartPeriodicBackup(0))
}

func TestBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	source := testutil.MustDB(t)
	require.NoError(t, source.Set([]byte("w:0xabc"), []byte(`{"tasks":["CLAIM"]}`)))

	service := NewService(testutil.GetLogger(), source, dir)
	backupFile, err := service.PerformBackup(ctx)
	require.NoError(t, err)

	_, err = os.Stat(backupFile)
	require.NoError(t, err)

	target := testutil.MustDB(t)
	restorer := NewService(testutil.GetLogger(), target, dir)
	require.NoError(t, restorer.Restore(ctx, ""))

	value, err := target.GetKey([]byte("w:0xabc"))
	require.NoError(t, err)
	assert.Equal(t, `{"tasks":["CLAIM"]}`, string(value))
}

func TestLatestPicksNewest(t *testing.T) {
	ctx := context.Background()
	service := NewService(nil, testutil.MustDB(t), t.TempDir())

	_, err := service.Latest()
	assert.ErrorIs(t, err, ErrNoBackup)

	clock := timekeeper.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	service.clock = clock

	first, err := service.PerformBackup(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := service.PerformBackup(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	latest, err := service.Latest()
	require.NoError(t, err)
	assert.Equal(t, second, latest)
}
