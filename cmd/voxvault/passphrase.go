package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/crypto"
	"github.com/voxvault/voxvault/pkg/security"
)

func init() {
	rootCmd.AddCommand(changePassphraseCmd)
}

// changePassphraseCmd rewraps the vault under a new passphrase
var changePassphraseCmd = &cobra.Command{
	Use:   "change-passphrase",
	Short: "Change the vault passphrase",
	Long: `Change the passphrase protecting the vault. The store is rebuilt
under a fresh salt and data key, so the old passphrase stops working
everywhere at once. The switch is atomic: a failure partway leaves the
old store untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := promptPassphrase("Enter current passphrase: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(current)

		if err := v.Unlock(current); err != nil {
			return fmt.Errorf("failed to unlock vault: %w", err)
		}
		defer v.Lock()

		newPass, err := promptNewPassphrase("new passphrase")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(newPass)

		strength := security.PasswordStrength(string(newPass))
		fmt.Printf("Passphrase strength: %s\n", strength)
		if strength == security.StrengthWeak {
			fmt.Println("Warning: a longer passphrase (14+ characters) is strongly recommended")
		}

		if err := v.ChangePassphrase(current, newPass); err != nil {
			return fmt.Errorf("failed to change passphrase: %w", err)
		}

		fmt.Println("Passphrase changed.")
		return nil
	},
}
