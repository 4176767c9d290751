// Package mcp exposes the resolver, catalog, and vault to an assistant
// front-end over the Model Context Protocol. The surface is plaintext
// free: passwords leave the vault only in masked form, and the mutating
// tools must be explicitly allowed by the operator's policy file.
//
// The vault is unlocked once at startup and auto-locks after the idle
// timeout like any other session. Once that happens, vault-backed tools
// return the locked error until the server is restarted; resolution and
// catalog tools keep working.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxvault/voxvault/internal/config"
	"github.com/voxvault/voxvault/internal/logging"
	"github.com/voxvault/voxvault/pkg/catalog"
	"github.com/voxvault/voxvault/pkg/crypto"
	"github.com/voxvault/voxvault/pkg/resolve"
	"github.com/voxvault/voxvault/pkg/vault"
)

// PassphraseEnv is the only non-interactive unlock path. The variable
// is read once at startup and then removed from the environment.
const PassphraseEnv = "VOXVAULT_PASSPHRASE"

const serverVersion = "0.1.0"

// Server bridges MCP tool calls to the resolver, catalog, and vault.
type Server struct {
	server     *mcp.Server
	vault      *vault.Vault
	catalog    *catalog.Catalog
	resolver   *resolve.Resolver
	policy     *Policy
	policyPath string
}

// Options configures NewServer.
type Options struct {
	// Config is the resolved application configuration. Nil loads the
	// default configuration.
	Config *config.Config

	// Passphrase unlocks the vault. When empty the passphrase is taken
	// from VOXVAULT_PASSPHRASE, which is then cleared.
	Passphrase string

	// PolicyPath overrides the policy file location. When empty the
	// policy is read from mcp-policy.yaml under the base directory.
	PolicyPath string
}

// NewServer unlocks the vault and wires up the tool surface. A missing
// or unreadable policy file is not fatal: the server starts restricted,
// with mutating tools disabled.
func NewServer(opts *Options) (*Server, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load("")
		if err != nil {
			return nil, err
		}
	}

	policyPath := opts.PolicyPath
	if policyPath == "" {
		policyPath = filepath.Join(cfg.BaseDir, PolicyFileName)
	}
	policy, err := LoadPolicy(policyPath)
	if err != nil {
		logging.Log.WithError(err).Warn("mcp policy not loaded, mutating tools are disabled")
		policy = nil
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	passphrase := opts.Passphrase
	if passphrase == "" {
		passphrase = os.Getenv(PassphraseEnv)
		os.Unsetenv(PassphraseEnv)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("no passphrase provided: set %s environment variable", PassphraseEnv)
	}

	v := vault.New(cfg.VaultPath, crypto.Params{}, cfg.IdleTimeout, cfg.AuditDir)
	if err := v.Unlock([]byte(passphrase)); err != nil {
		return nil, fmt.Errorf("failed to unlock vault: %w", err)
	}

	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{
				Name:    "voxvault",
				Version: serverVersion,
			},
			nil,
		),
		vault:      v,
		catalog:    cat,
		resolver:   resolve.New(cat, thresholdsFrom(cfg), buildNormalizer(cfg)),
		policy:     policy,
		policyPath: policyPath,
	}
	s.registerTools()
	return s, nil
}

// thresholdsFrom maps the configured confidence policy, falling back to
// the stock thresholds when the section is absent.
func thresholdsFrom(cfg *config.Config) resolve.Thresholds {
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

// buildNormalizer returns the LLM collaborator, or nil when escalation
// is disabled or misconfigured. Resolution works without it.
func buildNormalizer(cfg *config.Config) resolve.Normalizer {
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

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resolve_site",
		Description: "Resolve a spoken phrase to a catalog site name. Returns the matched site, confidence, match method, and whether explicit confirmation is required. Does NOT touch vault entries.",
	}, s.handleResolveSite)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_list",
		Description: "List the canonical site names and spoken aliases in the catalog. Catalog contents only; stored credentials are not revealed.",
	}, s.handleSiteList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_add",
		Description: "Register a canonical site name with optional spoken aliases. Mutating; requires policy approval.",
	}, s.handleSiteAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_status",
		Description: "Report vault state, entry count, total access count, store size, and last backup time. Does NOT return entry contents.",
	}, s.handleVaultStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_exists",
		Description: "Check whether a credential is stored for a site and return its metadata. Does NOT return the password.",
	}, s.handleCredentialExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_get_masked",
		Description: "Get the username and a masked password for a site (e.g. '****WXYZ'). The plaintext password is never returned.",
	}, s.handleCredentialGetMasked)
}

// Run starts the MCP server over stdio and blocks until the transport
// ends. The vault locks on the way out.
func (s *Server) Run(ctx context.Context) error {
	defer s.vault.Lock()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault.
func (s *Server) Close() error {
	s.vault.Lock()
	return nil
}
