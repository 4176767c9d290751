package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/security"
)

// Flags for security command
var (
	securityShowSites bool
	securityJSON      bool
)

func init() {
	rootCmd.AddCommand(securityCmd)
	securityCmd.Flags().BoolVar(&securityShowSites, "show-sites", false, "Name the affected sites in the report")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
}

// securityCmd reports on password health
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze vault security health",
	Long: `Analyze the stored passwords and report a security score.

The score combines average password strength with password uniqueness.
Weak and reused passwords are counted without naming sites; pass
--show-sites to see which entries need attention.

Example:
  voxvault security               # Score and counts only
  voxvault security --show-sites  # Name the affected sites
  voxvault security --json        # Output in JSON format`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer v.Lock()

		entries, err := v.List()
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}

		analyzer, err := security.NewAnalyzer(securityShowSites)
		if err != nil {
			return err
		}
		rep := analyzer.Analyze(entries)

		if securityJSON {
			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		printSecurityReport(rep)
		return nil
	},
}

func printSecurityReport(rep *security.Report) {
	fmt.Printf("Security score: %d/100 (%s)\n", rep.Score, scoreRating(rep.Score))
	fmt.Printf("Entries: %d\n", rep.Entries)

	if len(rep.Weak) > 0 {
		fmt.Printf("\nWeak passwords (%d):\n", len(rep.Weak))
		for _, w := range rep.Weak {
			if w.Site != "" {
				fmt.Printf("  - %s (%d characters)\n", w.Site, w.Length)
			} else {
				fmt.Printf("  - %d characters (%s)\n", w.Length, w.Strength)
			}
		}
	}

	if len(rep.Reused) > 0 {
		fmt.Printf("\nReused passwords (%d groups):\n", len(rep.Reused))
		for _, g := range rep.Reused {
			if len(g.Sites) > 0 {
				fmt.Printf("  - %d sites share one password: %s\n", g.Count, strings.Join(g.Sites, ", "))
			} else {
				fmt.Printf("  - %d sites share one password\n", g.Count)
			}
		}
	}

	if len(rep.Suggestions) > 0 {
		fmt.Println("\nSuggestions:")
		for _, s := range rep.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
}

func scoreRating(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "needs attention"
	}
}
