package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/voxvault/voxvault/internal/cli"
	"github.com/voxvault/voxvault/internal/config"
	"github.com/voxvault/voxvault/internal/logging"
	"github.com/voxvault/voxvault/pkg/crypto"
	"github.com/voxvault/voxvault/pkg/normalize"
	"github.com/voxvault/voxvault/pkg/security"
	"github.com/voxvault/voxvault/pkg/vault"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
	v   *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:   "voxvault",
	Short: "voxvault is a voice-friendly credential manager",
	Long: `A credential vault built for voice interfaces: spoken site names are
resolved against a catalog before they ever key a vault operation, and
every stored field is encrypted before it reaches disk.`,
	// PersistentPreRunE resolves the configuration and prepares the vault
	// handle for every subcommand. No file is touched here; the store is
	// only opened by init or unlock.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.SetLevel(cfg.LogLevel)

		v = vault.New(cfg.VaultPath, crypto.Params{}, cfg.IdleTimeout, cfg.AuditDir)
		return nil
	},
}

// Save command flags
var (
	saveUsername string
	saveMemo     string
	saveGenerate bool
)

// Audit list flags
var (
	auditLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.voxvault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(auditCmd)

	saveCmd.Flags().StringVarP(&saveUsername, "username", "u", "", "Username stored with the credential")
	saveCmd.Flags().StringVarP(&saveMemo, "memo", "m", "", "Memo stored with the credential")
	saveCmd.Flags().BoolVar(&saveGenerate, "generate", false, "Generate the password instead of prompting")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
}

// initCmd initializes a new vault
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new credential vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Initializing new vault...")

		passphrase, err := promptNewPassphrase("passphrase")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(passphrase)

		// Strength is advisory: a weak passphrase warns but never blocks.
		strength := security.PasswordStrength(string(passphrase))
		fmt.Printf("Passphrase strength: %s\n", strength)
		if strength == security.StrengthWeak {
			fmt.Println("Warning: a longer passphrase (14+ characters) is strongly recommended")
		}

		if err := v.Initialize(passphrase); err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
		defer v.Lock()

		fmt.Printf("Vault initialized at %s\n", v.Path())
		return nil
	},
}

// unlockCmd verifies the passphrase and prints the vault status
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Verify the passphrase and show vault status",
	Long: `Verify the passphrase and print the vault status.

Sessions are per-process: the vault locks again when this command exits.
Long-lived unlocked sessions live in 'assist' and 'mcp-server'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		stats, err := v.Stats()
		if err != nil {
			return fmt.Errorf("failed to read vault stats: %w", err)
		}

		fmt.Println("Passphrase verified.")
		printStats(stats)
		return nil
	},
}

// lockCmd exists for UX symmetry with unlock; locking is per-process.
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Confirm the vault is locked",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("The vault locks itself when each voxvault process exits; nothing to do.")
		return nil
	},
}

// saveCmd stores a credential for a site
var saveCmd = &cobra.Command{
	Use:   "save <site>",
	Short: "Save a credential for a site",
	Long: `Save a credential for a site. The password is prompted without echo,
or generated with --generate. Saving over an existing site replaces its
password, username, and memo.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site := normalize.Normalize(args[0])
		if site == "" {
			return fmt.Errorf("invalid site name: %q", args[0])
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		var password string
		if saveGenerate {
			generated, err := security.GeneratePassword(security.DefaultGeneratedLength, false)
			if err != nil {
				return fmt.Errorf("failed to generate password: %w", err)
			}
			password = generated
		} else {
			entered, err := promptNewPassphrase(fmt.Sprintf("password for '%s'", site))
			if err != nil {
				return err
			}
			password = string(entered)
			crypto.SecureWipe(entered)
		}

		entry, created, err := v.Save(site, password, saveUsername, saveMemo)
		if err != nil {
			return fmt.Errorf("failed to save credential: %w", err)
		}

		if saveGenerate {
			fmt.Printf("Generated password: %s\n", password)
		}
		if created {
			fmt.Printf("Credential for '%s' saved\n", entry.Site)
		} else {
			fmt.Printf("Credential for '%s' updated\n", entry.Site)
		}
		return nil
	},
}

// getCmd prints the password stored for a site
var getCmd = &cobra.Command{
	Use:   "get <site>",
	Short: "Print the password stored for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site := normalize.Normalize(args[0])

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		entry, err := v.Retrieve(site)
		if err != nil {
			if errors.Is(err, vault.ErrNotFound) {
				return fmt.Errorf("no credential stored for '%s'", site)
			}
			return fmt.Errorf("failed to get credential: %w", err)
		}

		// Only the password goes to stdout so the command pipes cleanly.
		fmt.Println(entry.Password)
		return nil
	},
}

// listCmd lists stored sites, optionally filtered by a glob pattern
var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List stored sites",
	Long: `List stored sites, optionally filtered by a glob pattern:

  voxvault list
  voxvault list 'g*'
  voxvault list gmail`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		entries, err := v.List()
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No credentials stored")
			return nil
		}

		sites := make([]string, len(entries))
		bySite := make(map[string]vault.Entry, len(entries))
		for i, e := range entries {
			sites[i] = e.Site
			bySite[e.Site] = e
		}

		matched, err := cli.FilterSites(pattern, sites)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			if cli.HasGlob(pattern) {
				fmt.Printf("No sites match pattern '%s'\n", pattern)
			} else {
				fmt.Printf("No credential stored for '%s'\n", pattern)
			}
			return nil
		}

		for _, site := range matched {
			printEntryLine(bySite[site])
		}
		return nil
	},
}

// searchCmd finds entries whose site or username contains a query
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored sites and usernames",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		entries, err := v.Search(args[0])
		if err != nil {
			return fmt.Errorf("failed to search credentials: %w", err)
		}
		if len(entries) == 0 {
			fmt.Printf("No credentials match '%s'\n", args[0])
			return nil
		}

		for _, e := range entries {
			printEntryLine(e)
		}
		return nil
	},
}

// deleteCmd removes the credential for a site
var deleteCmd = &cobra.Command{
	Use:   "delete <site>",
	Short: "Delete the credential for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site := normalize.Normalize(args[0])

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		deleted, err := v.Delete(site)
		if err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		if !deleted {
			fmt.Printf("No credential stored for '%s'\n", site)
			return nil
		}

		fmt.Printf("Credential for '%s' deleted\n", site)
		return nil
	},
}

// auditCmd is the parent command for audit log operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log events. Listing needs no passphrase: the
// log stores site names only as HMAC digests.
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := v.AuditLogger().ListEvents(auditLimit)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, event := range events {
			line := fmt.Sprintf("%s %s %s", event.Timestamp, event.Operation, event.Result)
			if event.SiteHMAC != "" {
				digest := event.SiteHMAC
				if len(digest) > 16 {
					digest = digest[:16] + "..."
				}
				line += fmt.Sprintf(" site:%s", digest)
			}
			if event.Err != "" {
				line += fmt.Sprintf(" err:%s", event.Err)
			}
			fmt.Println(line)
		}

		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies the audit chain; the chain key derives from the
// session key, so verification requires an unlocked vault.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		fmt.Println("Verifying audit log integrity...")

		result, err := v.AuditVerify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if result.Valid {
			fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.Records)
			return nil
		}

		fmt.Printf("✗ Audit log verification FAILED (%d records)\n", result.Records)
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return errors.New("audit log integrity check failed")
	},
}

// ensureUnlocked prompts for the passphrase and unlocks the vault.
func ensureUnlocked() error {
	if v.State() == vault.StateUnlocked {
		return nil
	}

	passphrase, err := promptPassphrase("Enter passphrase: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(passphrase)

	if err := v.Unlock(passphrase); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	return nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

// promptNewPassphrase prompts twice for a new secret and rejects empty or
// mismatched input.
func promptNewPassphrase(label string) ([]byte, error) {
	first, err := promptPassphrase(fmt.Sprintf("Enter %s: ", label))
	if err != nil {
		return nil, err
	}
	second, err := promptPassphrase(fmt.Sprintf("Confirm %s: ", label))
	if err != nil {
		crypto.SecureWipe(first)
		return nil, err
	}
	defer crypto.SecureWipe(second)

	if !bytes.Equal(first, second) {
		crypto.SecureWipe(first)
		return nil, errors.New("entries do not match")
	}
	if len(first) == 0 {
		return nil, errors.New("input must not be empty")
	}
	return first, nil
}

// readLine reads one line from stdin, trimming the trailing newline.
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// printEntryLine prints one listing line: the site, plus the username in
// brackets when one is stored.
func printEntryLine(e vault.Entry) {
	line := e.Site
	if e.Username != "" {
		line += fmt.Sprintf(" [%s]", e.Username)
	}
	fmt.Println(line)
}

// printStats prints the full stats block of an unlocked vault.
func printStats(st *vault.Stats) {
	fmt.Printf("State:    %s\n", st.State)
	fmt.Printf("Entries:  %d\n", st.Entries)
	fmt.Printf("Accesses: %d\n", st.Accesses)
	fmt.Printf("Size:     %s\n", formatBytes(st.StoreBytes))
	if st.LastBackup != nil {
		fmt.Printf("Last backup: %s\n", st.LastBackup.Format(time.RFC3339))
	}
}
