package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/internal/mcp"
)

// Flags for mcp-server command
var mcpPolicyFile string

func init() {
	rootCmd.AddCommand(mcpServerCmd)
	mcpServerCmd.Flags().StringVar(&mcpPolicyFile, "policy", "", "Path to the tool policy file (default <base>/mcp-policy.yaml)")
}

// mcpServerCmd starts the MCP server for voice assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for voice assistant integration",
	Long: `Start the MCP server that lets voice assistants resolve spoken site
names and check the vault without ever seeing a plaintext password.

The server implements the Model Context Protocol (MCP) over stdio transport.

Available tools:
  - resolve_site:         Resolve a spoken phrase to a canonical site name
  - site_list:            List the canonical site names in the catalog
  - site_add:             Add a site and its aliases to the catalog
  - vault_status:         Report the vault lock state and entry count
  - credential_exists:    Check whether a site has a stored credential
  - credential_get_masked: Get a masked preview of a password (e.g. "****WXYZ")

Plaintext passwords are never returned over MCP.

Authentication:
  Set VOXVAULT_PASSPHRASE environment variable before starting the server.
  The passphrase is read once and immediately cleared from the environment.
  Without it the server still runs, limited to the catalog tools.

Policy:
  Create ~/.voxvault/mcp-policy.yaml to restrict which tools the server
  registers. Without a policy file every tool above is available.

Example MCP configuration for Claude Code (~/.claude.json):
  {
    "mcpServers": {
      "voxvault": {
        "type": "stdio",
        "command": "/path/to/voxvault",
        "args": ["mcp-server"],
        "env": {
          "VOXVAULT_PASSPHRASE": "your-passphrase"
        }
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	server, err := mcp.NewServer(&mcp.Options{
		Config:     cfg,
		PolicyPath: mcpPolicyFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
		server.Close()
	}()

	if err := server.Run(ctx); err != nil {
		// Context cancellation is a clean shutdown, not an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
