package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/piggyclaim/piggyclaim/core/apiserver"
	"github.com/piggyclaim/piggyclaim/core/apqueue"
	"github.com/piggyclaim/piggyclaim/core/backup"
	"github.com/piggyclaim/piggyclaim/core/claimer"
	"github.com/piggyclaim/piggyclaim/core/notify"
	"github.com/piggyclaim/piggyclaim/core/taskengine"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/ipfetcher"
)

const (
	notificationFlushTimeout = 30 * time.Second
	uptimeTick               = 10 * time.Second
	outboxCleanupInterval    = time.Hour
)

var (
	schedule string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Process pending tasks",
		Long: `Run every pending task of every wallet in the database.

Use --schedule with a cron expression to repeat the run, e.g. "0 */6 * * *".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("schedule") {
				schedule = a.config.Schedule
			}
			return runBot(cmd.Context(), a, schedule)
		},
	}
)

func newRegistry(a *app, factory *claimer.Factory) *taskengine.Registry {
	registry := taskengine.NewRegistry()
	registry.Register(model.TaskClaim, factory.ClaimHandler)
	registry.Register(model.TaskSwap, taskengine.NotReleasedHandler(a.logger, "swap"))
	registry.Register(model.TaskCheckTokens, factory.CheckTokensHandler)
	return registry
}

// startOutbox wires telegram delivery through the durable queue. It returns a
// nil notifier when telegram is not configured.
func startOutbox(a *app) (taskengine.Notifier, func(), error) {
	if !a.config.TelegramEnabled() {
		return nil, func() {}, nil
	}

	queue := apqueue.New(a.db, a.logger, &apqueue.QueueOption{Prefix: "tg"})
	if err := queue.MustStart(); err != nil {
		return nil, nil, err
	}
	if recovered, err := queue.Recover(); err != nil {
		a.logger.Warn("cannot recover queued notifications", "error", err)
	} else if recovered > 0 {
		a.logger.Info("recovered queued notifications", "count", recovered)
	}
	bot := notify.NewTelegram(notify.DefaultTelegramAPI, a.config.TelegramBotToken, a.config.TelegramUserID, a.retryPolicy(), a.metrics)
	if _, err := queue.CleanupOrphanedJobs(bot.Owns); err != nil {
		a.logger.Warn("cannot clean up notification queue", "error", err)
	}
	// a scheduled run keeps the queue open for days
	queue.SchedulePeriodicCleanup(outboxCleanupInterval, bot.Owns)

	worker := apqueue.NewWorker(queue)
	if err := worker.RegisterProcessor(notify.JobTypeTelegram, bot); err != nil {
		return nil, nil, err
	}

	// the worker outlives the run context so queued messages still go out
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	worker.MustStart(workerCtx)

	stop := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), notificationFlushTimeout)
		defer cancel()
		if err := worker.Wait(flushCtx); err != nil {
			a.logger.Warn("notifications left for the next start", "error", err)
		}
		cancelWorker()
		<-worker.Done()
		if err := queue.Stop(); err != nil {
			a.logger.Warn("cannot stop notification queue", "error", err)
		}
	}

	return notify.NewOutbox(queue, a.config.TelegramUserID, a.config.ExplorerURL, a.logger), stop, nil
}

func trackUptime(ctx context.Context, a *app) {
	ticker := time.NewTicker(uptimeTick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.metrics.AddUptime(float64(uptimeTick.Milliseconds()))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func runBot(ctx context.Context, a *app, cronExpr string) error {
	keys, err := a.loadKeys(false)
	if err != nil {
		return err
	}

	factory, cache, err := a.claimerFactory(ctx)
	if err != nil {
		return err
	}
	defer cache.Close()

	notifier, stopOutbox, err := startOutbox(a)
	if err != nil {
		return err
	}
	defer stopOutbox()

	opts := []taskengine.Option{
		taskengine.WithMetrics(a.metrics),
		taskengine.WithClock(a.clock),
		taskengine.WithIPResolver(ipfetcher.ThroughProxy),
	}
	if notifier != nil {
		opts = append(opts, taskengine.WithNotifier(notifier))
	}

	engine := taskengine.New(taskengine.Config{
		PauseBetweenWallets: a.config.PauseBetweenWallets,
		PauseBetweenModules: a.config.PauseBetweenModules,
		MobileProxy:         a.config.MobileProxy,
		RotateIP:            a.config.RotateIP,
	}, newRegistry(a, factory), a.tracker, a.logger, opts...)

	apiserver.New(a.config.MetricsAddress, a.registry, engine, a.tracker, a.logger).Start(ctx)
	trackUptime(ctx, a)

	if a.config.BackupInterval > 0 {
		backups := backup.NewService(a.logger, a.db, a.config.BackupDir)
		if err := backups.StartPeriodicBackup(a.config.BackupInterval); err != nil {
			return err
		}
		defer backups.StopPeriodicBackup()
	}

	once := func(ctx context.Context) error {
		routes, err := a.tracker.Routes(keys, a.config.MobileProxy)
		if err != nil {
			return err
		}
		run, err := a.tracker.BeginRun()
		if err != nil {
			return err
		}

		a.logger.Info("starting run", "run", run, "wallets", len(routes))
		return engine.Run(ctx, routes)
	}

	if cronExpr == "" {
		err = once(ctx)
	} else {
		var cron *taskengine.CronRunner
		cron, err = taskengine.NewCronRunner(a.logger)
		if err != nil {
			return err
		}

		// first pass right away, then on every tick
		if err := once(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("run failed", "error", err)
		}
		err = cron.Serve(ctx, cronExpr, once)
	}

	if errors.Is(err, context.Canceled) {
		a.logger.Warn("interrupted, progress is saved")
		return nil
	}
	return err
}

func init() {
	runCmd.Flags().StringVar(&schedule, "schedule", "", "cron expression to repeat the run (overrides config)")
	rootCmd.AddCommand(runCmd)
}
