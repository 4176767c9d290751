package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(backupCmd)
}

// backupCmd snapshots the encrypted store
var backupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Write a snapshot of the encrypted store",
	Long: `Write a consistent snapshot of the store file. The snapshot is
byte-for-byte a usable store: restoring is pointing voxvault at it and
unlocking with the same passphrase. Nothing is decrypted on the way out.

Without a path the snapshot lands in the configured backup directory
under a UTC timestamp.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		dst := ""
		if len(args) == 1 {
			dst = args[0]
		} else {
			dst = defaultBackupPath(cfg.BackupDir, time.Now())
		}

		if err := v.Backup(dst); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup written to %s\n", dst)
		return nil
	},
}

// defaultBackupPath names a snapshot under dir by its UTC creation time.
func defaultBackupPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("vault-%s.db", now.UTC().Format("20060102T150405Z")))
}
