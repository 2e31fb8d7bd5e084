package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/piggyclaim/piggyclaim/core/backup"
	"github.com/piggyclaim/piggyclaim/core/claimer"
	"github.com/piggyclaim/piggyclaim/core/config"
	"github.com/piggyclaim/piggyclaim/core/migrator"
	"github.com/piggyclaim/piggyclaim/core/progress"
	"github.com/piggyclaim/piggyclaim/core/retry"
	"github.com/piggyclaim/piggyclaim/metrics"
	"github.com/piggyclaim/piggyclaim/migrations"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
	"github.com/piggyclaim/piggyclaim/storage"
)

// app holds what every command shares: config, logger, database and metrics.
type app struct {
	config   *config.Config
	logger   logger.Logger
	db       storage.Storage
	tracker  *progress.Tracker
	registry *prometheus.Registry
	metrics  *metrics.PiggyMetrics
	clock    timekeeper.Clock
}

func loadApp() (*app, error) {
	// an explicitly given config must exist, the default one is optional
	path := configPath
	if !rootCmd.PersistentFlags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	c, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}

	db, err := storage.NewWithPath(c.DbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %s: %w", c.DbPath, err)
	}

	m := migrator.NewMigrator(db, backup.NewService(c.Logger, db, c.BackupDir), migrations.Migrations, c.Logger)
	if _, err := m.Run(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		config:   c,
		logger:   c.Logger,
		db:       db,
		tracker:  progress.New(db, c.Logger),
		registry: reg,
		metrics:  metrics.NewPiggyMetrics(reg),
		clock:    timekeeper.RealClock(),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Vacuum(); err != nil {
		a.logger.Warn("cannot reclaim database space", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("cannot close database", "error", err)
	}
	// the zap backed logger buffers, the interface does not expose Sync
	if s, ok := a.logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

func (a *app) retryPolicy() retry.Policy {
	return a.config.RetryPolicy(a.logger, a.clock, func(name string, _ int, _ error) {
		a.metrics.IncRetry(name)
	})
}

func (a *app) claimerFactory(ctx context.Context) (*claimer.Factory, *claimer.AmountCache, error) {
	cache, err := claimer.NewAmountCache(ctx, claimer.DefaultAmountTTL)
	if err != nil {
		return nil, nil, err
	}

	factory := claimer.NewFactory(claimer.FactoryConfig{
		Config: claimer.Config{
			API:         a.config.SuperformAPI,
			ExplorerURL: a.config.ExplorerURL,
			MaxWait:     a.config.MaxWaitTime,
			Retry:       a.retryPolicy(),
		},
		RPCURL:     a.config.RPCURL,
		DynamicFee: a.config.DynamicFee,
	}, cache, a.clock, a.logger, a.metrics)

	return factory, cache, nil
}

// loadKeys reads the private key file, one entry per wallet. Only generate
// shuffles, a run follows the key file.
func (a *app) loadKeys(shuffle bool) ([]string, error) {
	keys, err := config.LoadKeys(a.config.PrivateKeysPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read private keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no private keys in %s", a.config.PrivateKeysPath)
	}
	if shuffle {
		keys = config.Shuffle(keys)
	}
	return keys, nil
}

// loadProxies reads the proxy pool. A missing file means direct connections.
func (a *app) loadProxies() ([]string, error) {
	lines, err := config.LoadLines(a.config.ProxiesPath)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("no proxy file, wallets will connect directly", "path", a.config.ProxiesPath)
		return nil, nil
	}
	return lines, err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
