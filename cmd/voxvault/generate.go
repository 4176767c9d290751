package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/security"
)

// Flags for generate command
var (
	generateLength    int
	generateNoSymbols bool
)

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().IntVarP(&generateLength, "length", "l", security.DefaultGeneratedLength, "Password length")
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Use only letters and digits")
}

// generateCmd emits a random password without touching the vault
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random password",
	Long: `Generate a cryptographically random password and print it. The vault
is not touched; pair with 'save --generate' to store one directly.

Examples:
  voxvault generate
  voxvault generate --length 32
  voxvault generate --no-symbols`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := security.GeneratePassword(generateLength, generateNoSymbols)
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		fmt.Println(password)
		return nil
	},
}
