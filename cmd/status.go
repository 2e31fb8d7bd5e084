package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Display wallet progress",
		Long:  `Display how many wallets and tasks are finished in the database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()

			stats, err := a.tracker.Stats()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "📊 Progress Report\n")
			fmt.Fprintf(out, "==================\n\n")
			fmt.Fprintf(out, "💾 Database: %s\n", a.config.DbPath)
			fmt.Fprintf(out, "   Wallets:          %d\n", stats.Wallets)
			fmt.Fprintf(out, "   Finished wallets: %d\n", stats.Finished)
			fmt.Fprintf(out, "   Completed tasks:  %d\n", stats.Completed)
			fmt.Fprintf(out, "   Pending tasks:    %d\n", stats.Pending)
			fmt.Fprintf(out, "   Runs so far:      %d\n\n", stats.Runs)

			if stats.Wallets == 0 {
				fmt.Fprintf(out, "💡 No wallets yet, run \"piggy generate\" first\n")
				return nil
			}

			if !verbose {
				return nil
			}

			statuses, err := a.tracker.Statuses()
			if err != nil {
				return err
			}

			printer := pp.New()
			printer.SetOutput(out)
			printer.SetColoringEnabled(false)

			for _, s := range statuses {
				done := make([]string, 0, len(s.Completed))
				for task, at := range s.Completed {
					done = append(done, fmt.Sprintf("%s@%s", task, at.UTC().Format(time.RFC3339)))
				}
				sort.Strings(done)

				fmt.Fprintf(out, "%s proxy=%s done=[%s]\n", s.Record.Address, s.ProxyString, strings.Join(done, " "))
				printer.Println(s.Pending)
			}
			return nil
		},
	}
)

func init() {
	statusCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every wallet")
	rootCmd.AddCommand(statusCmd)
}
