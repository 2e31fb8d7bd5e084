package cmd

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/piggyclaim/piggyclaim/core/claimer"
	"github.com/piggyclaim/piggyclaim/core/config"
	"github.com/piggyclaim/piggyclaim/core/report"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

var (
	reportPath string

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check claimable PIGGY of every wallet",
		Long: `Look up the PIGGY allocation of every private key and write a report.

The report format follows the file extension: .csv or .xlsx (default).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if reportPath == "" {
				reportPath = a.config.ReportPath
			}

			// report rows follow the key file, so no shuffling here
			keys, err := config.LoadKeys(a.config.PrivateKeysPath)
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

			factory, cache, err := a.claimerFactory(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close()

			balances, err := factory.Check(cmd.Context(), wallets, claimer.CheckOptions{
				Concurrency: a.config.CheckConcurrency,
				Pause:       a.config.PauseBetweenWallets,
				RotateIP:    a.config.MobileProxy && a.config.RotateIP,
			})
			if err != nil {
				return err
			}

			if err := report.New(reportPath).Write(balances); err != nil {
				return err
			}

			total := lo.Reduce(balances, func(sum decimal.Decimal, b claimer.Balance, _ int) decimal.Decimal {
				return sum.Add(b.Amount)
			}, decimal.Zero)
			failed := lo.CountBy(balances, func(b claimer.Balance) bool { return b.Err != nil })

			logger.Success(a.logger, "report written", "path", reportPath, "wallets", len(balances), "failed", failed, "total_tokens", total.String())
			return nil
		},
	}
)

func init() {
	checkCmd.Flags().StringVarP(&reportPath, "out", "o", "", "report file (overrides report_path)")
	rootCmd.AddCommand(checkCmd)
}
