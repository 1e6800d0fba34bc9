package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acredita/respaldo/internal/core/domain"
)

var backupDisk string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup",
	Long:  "Create a database backup (typically used by cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices()
		if err != nil {
			return err
		}
		defer services.Close()

		disk := cfg.DefaultDisk
		if backupDisk != "" {
			disk = backupDisk
		}
		parsedDisk, err := domain.ParseStorageDisk(disk)
		if err != nil {
			return err
		}

		// Backups created from the CLI are attributed to the scheduler, not
		// to an API principal.
		backup, err := services.BackupService.Create(cmd.Context(), domain.BackupTypeScheduled, parsedDisk, nil)
		if err != nil {
			if backup != nil && backup.ErrorMessage != nil {
				return fmt.Errorf("backup %s failed: %s", backup.ID, *backup.ErrorMessage)
			}
			return fmt.Errorf("failed to create backup: %w", err)
		}

		fmt.Printf("Backup completed\n")
		fmt.Printf("ID:       %s\n", backup.ID)
		fmt.Printf("Filename: %s\n", backup.Filename)
		fmt.Printf("Disk:     %s\n", backup.StorageDisk)
		if backup.FileSize != nil {
			fmt.Printf("Size:     %d bytes\n", *backup.FileSize)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVar(&backupDisk, "disk", "", "Storage disk: local or remote (defaults to configured disk)")
}
