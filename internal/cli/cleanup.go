package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupKeepDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run backup cleanup",
	Long:  "Delete backups older than the retention horizon (typically used by cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		keepDays := cfg.RetentionDays
		if cleanupKeepDays > 0 {
			keepDays = cleanupKeepDays
		}

		deleted, err := services.CleanupService.Cleanup(cmd.Context(), keepDays)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}

		fmt.Printf("Cleanup finished: %d backup(s) deleted (keeping %d days)\n", deleted, keepDays)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupKeepDays, "keep-days", 0, "Retention horizon in days (defaults to configured retention_days)")
}
