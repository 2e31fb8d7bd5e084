package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/config.yaml"
	rootCmd    = &cobra.Command{
		Use:   "piggy",
		Short: "Superform PIGGY claimer",
		Long: `Batch claimer for Superform PIGGY rewards.

Build the wallet database once with "piggy generate", then process it with
"piggy run". Completed tasks are remembered, so run can be repeated until
every wallet is done.
`,
		SilenceUsage: true,
	}
)

func Execute() {
	ctx, stop := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to config file")
}
