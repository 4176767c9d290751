package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/crypto"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// exportCmd writes a portable encrypted container
var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the vault to a portable encrypted container",
	Long: `Export every entry into a single portable container sealed under a
backup passphrase of its own. The container shares no key material with
the store, so it can be moved between machines and imported with just
that passphrase.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		backupPass, err := promptNewPassphrase("backup passphrase")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(backupPass)

		if err := v.Export(args[0], backupPass); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Vault exported to %s\n", args[0])
		return nil
	},
}

// importCmd restores entries from an exported container
var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import entries from an exported container",
	Long: `Import every entry from a container written by 'voxvault export'.
Imported entries replace the current contents. A snapshot of the store
is written beside it first, so the previous state survives a bad import.
The vault is locked afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		backupPass, err := promptPassphrase("Enter backup passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(backupPass)

		if err := v.Import(args[0], backupPass); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Println("Import complete; the vault is locked, unlock to use the imported entries.")
		return nil
	},
}
