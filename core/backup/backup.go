package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
	"github.com/piggyclaim/piggyclaim/storage"
)

const backupFileName = "full-backup.db"

var ErrNoBackup = errors.New("no backup found")

// Service snapshots the progress database into timestamped directories
// under backupDir.
type Service struct {
	logger    logger.Logger
	db        storage.Storage
	backupDir string
	clock     timekeeper.Clock

	mu            sync.Mutex
	backupEnabled bool
	interval      time.Duration
	stop          chan struct{}
}

func NewService(log logger.Logger, db storage.Storage, backupDir string) *Service {
	return &Service{
		logger:    logger.EnsureLogger(log),
		db:        db,
		backupDir: backupDir,
		clock:     timekeeper.RealClock(),
	}
}

func (s *Service) StartPeriodicBackup(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backupEnabled {
		return fmt.Errorf("backup service already running")
	}
	if interval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %s", interval)
	}

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	s.interval = interval
	s.backupEnabled = true
	s.stop = make(chan struct{})

	go s.backupLoop(s.stop)

	s.logger.Infof("Started periodic backup every %v to %s", interval, s.backupDir)
	return nil
}

func (s *Service) StopPeriodicBackup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.backupEnabled {
		return
	}

	s.backupEnabled = false
	close(s.stop)
	s.logger.Infof("Stopped periodic backup")
}

func (s *Service) backupLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if backupFile, err := s.PerformBackup(context.Background()); err != nil {
				s.logger.Errorf("Periodic backup failed: %v", err)
			} else {
				s.logger.Infof("Periodic backup completed successfully to %s", backupFile)
			}
		case <-stop:
			return
		}
	}
}

// PerformBackup writes a full snapshot and returns its path.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	timestamp := s.clock.Now().UTC().Format("06-01-02-15-04-05.000")
	backupPath := filepath.Join(s.backupDir, timestamp)

	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup timestamp directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, backupFileName)
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	s.logger.Debug("running backup", "file", backupFile)
	if _, err := s.db.Backup(ctx, f, 0); err != nil {
		return "", fmt.Errorf("backup operation failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to flush backup file: %w", err)
	}

	s.logger.Info("backup completed", "file", backupFile)
	return backupFile, nil
}

// Latest returns the newest snapshot in backupDir.
func (s *Service) Latest() (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.backupDir, "*", backupFileName))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoBackup
	}

	// timestamp directories sort chronologically
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Restore loads a snapshot into the database. Existing keys are
// overwritten, keys absent from the snapshot are kept.
func (s *Service) Restore(ctx context.Context, backupFile string) error {
	if backupFile == "" {
		latest, err := s.Latest()
		if err != nil {
			return err
		}
		backupFile = latest
	}

	f, err := os.Open(backupFile)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	if err := s.db.Load(ctx, f); err != nil {
		return fmt.Errorf("restore from %s failed: %w", backupFile, err)
	}

	s.logger.Info("restored database", "file", backupFile)
	return nil
}
