package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piggyclaim/piggyclaim/core/backup"
)

var (
	backupDir   string
	restoreFile string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup the wallet database",
		Long: `Backup the wallet database to a directory.

Backups are stored in the format: /backup_dir/yy-mm-dd-hh-mm-ss.mmm/full-backup.db
Use --dir to override backup_dir from the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			file, err := backup.NewService(a.logger, a.db, dirOr(a.config.BackupDir)).PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the wallet database from backup",
		Long: `Load a backup into the wallet database.

Use --file to pick a backup file, otherwise the newest backup in the backup
directory is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return backup.NewService(a.logger, a.db, dirOr(a.config.BackupDir)).Restore(cmd.Context(), restoreFile)
		},
	}
)

func dirOr(configured string) string {
	if backupDir != "" {
		return backupDir
	}
	return configured
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Directory to store backups")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&backupDir, "dir", "", "Directory to look for backups")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from")
	rootCmd.AddCommand(restoreCmd)
}
