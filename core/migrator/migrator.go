package migrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/piggyclaim/piggyclaim/core/backup"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/storage"
	"github.com/piggyclaim/piggyclaim/storage/schema"
)

// MigrationFunc rewrites stored data and returns the number of records updated.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	Name     string
	Function MigrationFunc
}

// Migrator applies every migration once. Applied migrations are recorded
// under migration:<name>.
type Migrator struct {
	db         storage.Storage
	migrations []Migration
	backup     *backup.Service
	logger     logger.Logger
	mu         sync.Mutex
}

func NewMigrator(db storage.Storage, backup *backup.Service, migrations []Migration, log logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: migrations,
		backup:     backup,
		logger:     logger.EnsureLogger(log),
	}
}

func migrationKey(name string) []byte {
	return []byte(fmt.Sprintf("migration:%s", name))
}

// Register adds a new migration to the list
func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{
		Name:     name,
		Function: fn,
	})
}

func (m *Migrator) pending() ([]Migration, error) {
	var pending []Migration
	for _, migration := range m.migrations {
		exists, err := m.db.Exist(migrationKey(migration.Name))
		if err != nil {
			return nil, err
		}
		if !exists {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Run executes all registered migrations that haven't been run yet. The
// database is backed up first when it holds wallets.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.pending()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	wallets, err := m.db.CountKeysByPrefix(schema.WalletStoragePrefix())
	if err != nil {
		return 0, err
	}
	if wallets > 0 && m.backup != nil {
		m.logger.Info("pending migrations found, backing up database first", "count", len(pending))
		if _, err := m.backup.PerformBackup(ctx); err != nil {
			return 0, fmt.Errorf("failed to create backup before migrations: %w", err)
		}
	}

	for _, migration := range pending {
		m.logger.Debug("running migration", "name", migration.Name)
		recordsUpdated, err := migration.Function(m.db)
		if err != nil {
			return 0, fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		m.logger.Info("migration applied", "name", migration.Name, "records", recordsUpdated)

		record := fmt.Sprintf("records=%d,ts=%d", recordsUpdated, time.Now().UnixMilli())
		if err := m.db.Set(migrationKey(migration.Name), []byte(record)); err != nil {
			return 0, fmt.Errorf("failed to mark migration as complete in database: %w", err)
		}
	}

	return len(pending), nil
}
