package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/piggyclaim/piggyclaim/core/backup"
	"github.com/piggyclaim/piggyclaim/core/config"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build the wallet database",
	Long: `Read private keys and proxies, assign a proxy to every wallet and plan the
configured tasks. Existing progress is backed up and then replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return generate(cmd.Context(), a)
	},
}

func generate(ctx context.Context, a *app) error {
	keys, err := a.loadKeys(a.config.ShuffleWallets)
	if err != nil {
		return err
	}
	proxies, err := a.loadProxies()
	if err != nil {
		return err
	}

	wallets, err := config.BuildWallets(keys, proxies, a.config.MobileProxy)
	if err != nil {
		return err
	}

	if _, err := backup.NewService(a.logger, a.db, a.config.BackupDir).PerformBackup(ctx); err != nil {
		return err
	}

	count, err := a.tracker.Generate(wallets, a.config.Tasks)
	if err != nil {
		return err
	}

	logger.Success(a.logger, "database generated", "wallets", count, "proxies", len(proxies), "tasks", a.config.Tasks)
	return nil
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
