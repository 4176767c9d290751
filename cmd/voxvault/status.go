package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/internal/logging"
	"github.com/voxvault/voxvault/pkg/vault"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusCmd reports vault state without unlocking it
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state, store size, and disk space",
	Long: `Show the vault state without asking for the passphrase. Entry counts
need the store open; run 'unlock' to see them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := v.Stats()
		if err != nil {
			return fmt.Errorf("failed to read vault stats: %w", err)
		}

		fmt.Printf("Vault: %s\n", v.Path())
		fmt.Printf("State: %s\n", stats.State)
		if stats.State != vault.StateUninitialized {
			fmt.Printf("Size:  %s\n", formatBytes(stats.StoreBytes))
		}

		disk, err := v.CheckDiskSpace()
		if err != nil {
			logging.Log.WithError(err).Warn("disk space check failed")
			return nil
		}
		fmt.Printf("Disk:  %s available of %s (%d%% used)\n",
			formatBytes(int64(disk.Available)), formatBytes(int64(disk.Total)), disk.UsedPct)
		return nil
	},
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
