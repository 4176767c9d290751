package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxvault/voxvault/pkg/normalize"
)

// ResolveSiteInput is the input of the resolve_site tool.
type ResolveSiteInput struct {
	Transcript string `json:"transcript"`
}

// ResolveSiteOutput carries the full resolution decision.
type ResolveSiteOutput struct {
	Transcript        string  `json:"transcript"`
	Normalized        string  `json:"normalized"`
	Site              string  `json:"site,omitempty"`
	Confidence        float64 `json:"confidence"`
	Method            string  `json:"method"`
	NeedsConfirmation bool    `json:"needs_confirmation"`
}

// SiteListInput is the input of the site_list tool.
type SiteListInput struct{}

// SiteInfo is one catalog entry.
type SiteInfo struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
}

// SiteListOutput is the output of the site_list tool.
type SiteListOutput struct {
	Sites []SiteInfo `json:"sites"`
}

// SiteAddInput is the input of the site_add tool.
type SiteAddInput struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases,omitempty"`
}

// SiteAddOutput reports the stored entry after the merge.
type SiteAddOutput struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
	Sites     int      `json:"sites"`
}

// VaultStatusInput is the input of the vault_status tool.
type VaultStatusInput struct{}

// VaultStatusOutput is the output of the vault_status tool.
type VaultStatusOutput struct {
	State      string `json:"state"`
	Entries    int    `json:"entries"`
	Accesses   int64  `json:"accesses"`
	StoreBytes int64  `json:"store_bytes"`
	LastBackup string `json:"last_backup,omitempty"`
	Sites      int    `json:"sites"`
}

// CredentialExistsInput is the input of the credential_exists tool.
type CredentialExistsInput struct {
	Site string `json:"site"`
}

// CredentialExistsOutput is entry metadata without any credential fields.
type CredentialExistsOutput struct {
	Exists      bool   `json:"exists"`
	Site        string `json:"site"`
	HasUsername bool   `json:"has_username"`
	HasMemo     bool   `json:"has_memo"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// CredentialGetMaskedInput is the input of the credential_get_masked tool.
type CredentialGetMaskedInput struct {
	Site string `json:"site"`
}

// CredentialGetMaskedOutput is the output of the credential_get_masked tool.
type CredentialGetMaskedOutput struct {
	Site           string `json:"site"`
	Username       string `json:"username,omitempty"`
	MaskedPassword string `json:"masked_password"`
	PasswordLength int    `json:"password_length"`
}

// checkTool applies the operator policy to one tool call. Without a
// policy file the server runs restricted: read-only tools work and
// mutating tools are denied.
func (s *Server) checkTool(tool string) error {
	if s.policy == nil {
		if isMutating(tool) {
			return fmt.Errorf("MCP policy not configured. Create %s with an allowed_tools entry to enable %s", s.policyPath, tool)
		}
		return nil
	}
	if allowed, reason := s.policy.IsToolAllowed(tool); !allowed {
		return fmt.Errorf("tool not allowed by policy: %s", reason)
	}
	return nil
}

// handleResolveSite handles the resolve_site tool call.
func (s *Server) handleResolveSite(ctx context.Context, _ *mcp.CallToolRequest, input ResolveSiteInput) (*mcp.CallToolResult, ResolveSiteOutput, error) {
	if err := s.checkTool("resolve_site"); err != nil {
		return nil, ResolveSiteOutput{}, err
	}
	if strings.TrimSpace(input.Transcript) == "" {
		return nil, ResolveSiteOutput{}, errors.New("transcript is required")
	}

	res := s.resolver.Resolve(ctx, input.Transcript)

	return nil, ResolveSiteOutput{
		Transcript:        res.Transcript,
		Normalized:        res.Normalized,
		Site:              res.Site,
		Confidence:        res.Confidence,
		Method:            string(res.Method),
		NeedsConfirmation: res.NeedsConfirmation,
	}, nil
}

// handleSiteList handles the site_list tool call.
func (s *Server) handleSiteList(_ context.Context, _ *mcp.CallToolRequest, _ SiteListInput) (*mcp.CallToolResult, SiteListOutput, error) {
	if err := s.checkTool("site_list"); err != nil {
		return nil, SiteListOutput{}, err
	}

	entries := s.catalog.Entries()
	output := SiteListOutput{Sites: make([]SiteInfo, 0, len(entries))}
	for _, e := range entries {
		output.Sites = append(output.Sites, SiteInfo{
			Canonical: e.Canonical,
			Aliases:   e.Aliases,
		})
	}
	return nil, output, nil
}

// handleSiteAdd handles the site_add tool call.
func (s *Server) handleSiteAdd(_ context.Context, _ *mcp.CallToolRequest, input SiteAddInput) (*mcp.CallToolResult, SiteAddOutput, error) {
	if err := s.checkTool("site_add"); err != nil {
		return nil, SiteAddOutput{}, err
	}
	if strings.TrimSpace(input.Canonical) == "" {
		return nil, SiteAddOutput{}, errors.New("canonical is required")
	}

	if err := s.catalog.AddSite(input.Canonical, input.Aliases...); err != nil {
		return nil, SiteAddOutput{}, fmt.Errorf("failed to add site: %w", err)
	}

	canonical := normalize.Normalize(input.Canonical)
	output := SiteAddOutput{Canonical: canonical, Sites: s.catalog.Len()}
	for _, e := range s.catalog.Entries() {
		if e.Canonical == canonical {
			output.Aliases = e.Aliases
			break
		}
	}
	return nil, output, nil
}

// handleVaultStatus handles the vault_status tool call.
func (s *Server) handleVaultStatus(_ context.Context, _ *mcp.CallToolRequest, _ VaultStatusInput) (*mcp.CallToolResult, VaultStatusOutput, error) {
	if err := s.checkTool("vault_status"); err != nil {
		return nil, VaultStatusOutput{}, err
	}

	st, err := s.vault.Stats()
	if err != nil {
		return nil, VaultStatusOutput{}, fmt.Errorf("failed to read vault status: %w", err)
	}

	output := VaultStatusOutput{
		State:      string(st.State),
		Entries:    st.Entries,
		Accesses:   st.Accesses,
		StoreBytes: st.StoreBytes,
		Sites:      s.catalog.Len(),
	}
	if st.LastBackup != nil {
		output.LastBackup = st.LastBackup.Format(time.RFC3339)
	}
	return nil, output, nil
}

// handleCredentialExists handles the credential_exists tool call. It
// scans the listing rather than calling Retrieve so an existence probe
// does not count as a credential access.
func (s *Server) handleCredentialExists(_ context.Context, _ *mcp.CallToolRequest, input CredentialExistsInput) (*mcp.CallToolResult, CredentialExistsOutput, error) {
	if err := s.checkTool("credential_exists"); err != nil {
		return nil, CredentialExistsOutput{}, err
	}
	site := normalize.Normalize(input.Site)
	if site == "" {
		return nil, CredentialExistsOutput{}, errors.New("site is required")
	}

	entries, err := s.vault.List()
	if err != nil {
		return nil, CredentialExistsOutput{}, fmt.Errorf("failed to read vault: %w", err)
	}
	for _, e := range entries {
		if e.Site != site {
			continue
		}
		return nil, CredentialExistsOutput{
			Exists:      true,
			Site:        e.Site,
			HasUsername: e.Username != "",
			HasMemo:     e.Memo != "",
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
		}, nil
	}
	return nil, CredentialExistsOutput{
		Exists: false,
		Site:   site,
	}, nil
}

// handleCredentialGetMasked handles the credential_get_masked tool call.
// This is a real credential access: it bumps the access counter and
// lands in the audit log like a CLI get, but only the masked form of
// the password leaves the process.
func (s *Server) handleCredentialGetMasked(_ context.Context, _ *mcp.CallToolRequest, input CredentialGetMaskedInput) (*mcp.CallToolResult, CredentialGetMaskedOutput, error) {
	if err := s.checkTool("credential_get_masked"); err != nil {
		return nil, CredentialGetMaskedOutput{}, err
	}
	site := normalize.Normalize(input.Site)
	if site == "" {
		return nil, CredentialGetMaskedOutput{}, errors.New("site is required")
	}

	entry, err := s.vault.Retrieve(site)
	if err != nil {
		return nil, CredentialGetMaskedOutput{}, fmt.Errorf("failed to get credential: %w", err)
	}

	return nil, CredentialGetMaskedOutput{
		Site:           site,
		Username:       entry.Username,
		MaskedPassword: maskValue(entry.Password),
		PasswordLength: len(entry.Password),
	}, nil
}

// maskValue hides a password while keeping enough of its tail to check
// against something the user can already see.
//
//	| Length | Format      | Example  |
//	|--------|-------------|----------|
//	| 1-4    | All *       | ****     |
//	| 5-8    | Show last 2 | ******XY |
//	| 9+     | Show last 4 | ****WXYZ |
func maskValue(value string) string {
	length := len(value)
	if length == 0 {
		return ""
	}

	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + value[length-2:]
	default:
		return strings.Repeat("*", length-4) + value[length-4:]
	}
}
