package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/catalog"
	"github.com/voxvault/voxvault/pkg/normalize"
)

func init() {
	rootCmd.AddCommand(siteCmd)
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteListCmd)
}

// siteCmd is the parent command for catalog operations. The catalog holds
// public site names, never credentials, so none of these prompt.
var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Site catalog operations",
}

// siteAddCmd adds a site or new aliases to the catalog
var siteAddCmd = &cobra.Command{
	Use:   "add <canonical> [alias...]",
	Short: "Add a site or aliases to the catalog",
	Long: `Add a canonical site name and optional spoken aliases to the catalog.
Names are normalized the same way transcripts are, so "Wells Fargo" and
"wells fargo" are one site. Adding an existing site merges the aliases.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load site catalog: %w", err)
		}

		if err := cat.AddSite(args[0], args[1:]...); err != nil {
			return fmt.Errorf("failed to add site: %w", err)
		}

		fmt.Printf("Site '%s' added (%d sites in catalog)\n", normalize.Normalize(args[0]), cat.Len())
		return nil
	},
}

// siteListCmd lists catalog sites with their aliases
var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sites and their aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load site catalog: %w", err)
		}

		for _, e := range cat.Entries() {
			// The canonical name sits in its own alias list; print only
			// the extra aliases.
			var aliases []string
			for _, a := range e.Aliases {
				if a != e.Canonical {
					aliases = append(aliases, a)
				}
			}
			if len(aliases) > 0 {
				fmt.Printf("%s (%s)\n", e.Canonical, strings.Join(aliases, ", "))
			} else {
				fmt.Println(e.Canonical)
			}
		}

		fmt.Printf("\nTotal: %d sites\n", cat.Len())
		return nil
	},
}
