package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/importer"
)

// Flags for import-csv command
var importCsvFormat string

func init() {
	rootCmd.AddCommand(importCsvCmd)
	importCsvCmd.Flags().StringVar(&importCsvFormat, "format", "", fmt.Sprintf("Source manager format (%s)", strings.Join(importer.Formats(), ", ")))
	importCsvCmd.MarkFlagRequired("format")
}

// importCsvCmd imports credentials from another manager's CSV export
var importCsvCmd = &cobra.Command{
	Use:   "import-csv --format <format> <file>",
	Short: "Import credentials from another password manager's CSV export",
	Long: `Import credentials from the CSV export of another password manager.

Supported formats: ` + strings.Join(importer.Formats(), ", ") + `

Site names are derived from each row's URL, so "https://github.com/login"
imports as "github" and resolves by voice like any other entry. Rows
without a usable site or password are skipped and reported.

Examples:
  voxvault import-csv --format bitwarden bitwarden_export.csv
  voxvault import-csv --format lastpass lastpass_export.csv`,
	Args: cobra.ExactArgs(1),
	RunE: executeImportCSV,
}

func executeImportCSV(cmd *cobra.Command, args []string) error {
	parser, err := importer.ParserFor(importer.Format(strings.ToLower(importCsvFormat)))
	if err != nil {
		return fmt.Errorf("invalid --format value '%s': supported formats are %s", importCsvFormat, strings.Join(importer.Formats(), ", "))
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	result, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s export: %w", parser.Format(), err)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(os.Stderr, "Skipped row %d: %s (%s)\n", s.Row, s.Name, s.Reason)
	}

	if len(result.Records) == 0 {
		fmt.Println("No credentials found in file")
		return nil
	}

	if err := ensureUnlocked(); err != nil {
		return err
	}
	defer v.Lock()

	added := 0
	updated := 0
	failed := 0
	for _, rec := range result.Records {
		_, created, err := v.Save(rec.Site, rec.Password, rec.Username, rec.Memo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed: %s (%v)\n", rec.Site, err)
			failed++
			continue
		}
		if created {
			added++
		} else {
			updated++
		}
	}

	fmt.Println("Import summary:")
	fmt.Printf("  Added:   %d\n", added)
	fmt.Printf("  Updated: %d\n", updated)
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped: %d\n", len(result.Skipped))
	}
	if failed > 0 {
		fmt.Printf("  Failed:  %d\n", failed)
		return fmt.Errorf("%d records failed to import", failed)
	}

	return nil
}
