package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/internal/logging"
	"github.com/voxvault/voxvault/pkg/catalog"
	"github.com/voxvault/voxvault/pkg/resolve"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

// resolveCmd runs the resolution pipeline and prints the decision
var resolveCmd = &cobra.Command{
	Use:   "resolve <text...>",
	Short: "Resolve a spoken phrase to a catalog site",
	Long: `Run the full resolution pipeline against the site catalog and print
the decision as JSON: normalization, the matcher cascade, the confidence
policy, and LLM escalation when it is configured. No vault access is
involved.

Examples:
  voxvault resolve gmail dot com
  voxvault resolve my facebook account`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := buildResolver()
		if err != nil {
			return err
		}

		result := resolver.Resolve(cmd.Context(), strings.Join(args, " "))

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildResolver loads the site catalog and assembles the resolver per the
// configured confidence policy.
func buildResolver() (*resolve.Resolver, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load site catalog: %w", err)
	}
	return resolve.New(cat, thresholdsFrom(), buildNormalizer()), nil
}

// thresholdsFrom maps the configured confidence policy, falling back to
// the stock thresholds when the section is absent.
func thresholdsFrom() resolve.Thresholds {
	th := resolve.Thresholds{
		Accept:           cfg.Resolver.Accept,
		LLMEscalateBelow: cfg.Resolver.LLMEscalateBelow,
		ConfirmFloor:     cfg.Resolver.ConfirmFloor,
		FuzzyFloor:       cfg.Resolver.FuzzyFloor,
	}
	if th == (resolve.Thresholds{}) {
		return resolve.DefaultThresholds()
	}
	return th
}

// buildNormalizer returns the LLM collaborator, or nil when escalation is
// disabled or misconfigured. Resolution works without it.
func buildNormalizer() resolve.Normalizer {
	if !cfg.LLM.Enabled {
		return nil
	}
	client, err := resolve.NewClient(resolve.Config{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		logging.Log.WithError(err).Warn("llm escalation disabled")
		return nil
	}
	return client
}
