package migrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piggyclaim/piggyclaim/core/backup"
	"github.com/piggyclaim/piggyclaim/core/testutil"
	"github.com/piggyclaim/piggyclaim/storage"
)

func TestMigratorRunsOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustDB(t)

	m := NewMigrator(db, backup.NewService(nil, db, t.TempDir()), nil, testutil.GetLogger())

	calls := 0
	m.Register("test_migration", func(db storage.Storage) (int, error) {
		calls++
		return 5, db.Set([]byte("test:key"), []byte("migrated"))
	})

	applied, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	record, err := db.GetKey([]byte("migration:test_migration"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(record), "records=5,ts="), string(record))

	applied, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, calls)
}

func TestMigratorStopsOnFailure(t *testing.T) {
	db := testutil.MustDB(t)
	m := NewMigrator(db, nil, []Migration{
		{Name: "a", Function: func(storage.Storage) (int, error) { return 0, errors.New("boom") }},
		{Name: "b", Function: func(storage.Storage) (int, error) { return 0, nil }},
	}, nil)

	_, err := m.Run(context.Background())
	assert.ErrorContains(t, err, "migration a failed")

	exists, err := db.Exist([]byte("migration:a"))
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = db.Exist([]byte("migration:b"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigratorBacksUpPopulatedDatabase(t *testing.T) {
	db := testutil.MustDB(t)
	dir := t.TempDir()
	backups := backup.NewService(nil, db, dir)

	m := NewMigrator(db, backups, []Migration{
		{Name: "noop", Function: func(storage.Storage) (int, error) { return 0, nil }},
	}, nil)

	// empty database, nothing worth saving
	_, err := m.Run(context.Background())
	require.NoError(t, err)
	_, err = backups.Latest()
	assert.ErrorIs(t, err, backup.ErrNoBackup)

	require.NoError(t, db.Set([]byte("w:0xabc"), []byte(`{}`)))
	m.Register("second", func(storage.Storage) (int, error) { return 0, nil })

	_, err = m.Run(context.Background())
	require.NoError(t, err)
	latest, err := backups.Latest()
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(filepath.Dir(latest)))
}
