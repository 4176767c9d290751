package mcp

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Policy is the operator's contract for the MCP tool surface. It comes
// from a YAML file that must be a regular file with mode 0600, owned by
// the user running the server.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
}

// PolicyFileName is the policy file name under the base directory.
const PolicyFileName = "mcp-policy.yaml"

// Policy action values.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

var (
	// ErrPolicyNotFound is returned when no policy file exists.
	ErrPolicyNotFound = errors.New("mcp: policy file not found")

	// ErrPolicyInsecure is returned when the policy file permissions
	// are anything other than 0600.
	ErrPolicyInsecure = errors.New("mcp: policy file has insecure permissions")

	// ErrPolicySymlink is returned when the policy file is a symlink.
	ErrPolicySymlink = errors.New("mcp: policy file is a symlink")

	// ErrPolicyNotOwnedByUser is returned when the policy file belongs
	// to another user.
	ErrPolicyNotOwnedByUser = errors.New("mcp: policy file not owned by current user")
)

// LoadPolicy reads and validates the policy file at path. The file is
// opened without following symlinks and every check runs against the
// descriptor actually opened, so the validation cannot race a file swap.
func LoadPolicy(path string) (*Policy, error) {
	f, err := openPolicyFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to stat policy file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("mcp: failed to parse policy file: %w", err)
	}
	if policy.Version != 1 {
		return nil, fmt.Errorf("mcp: unsupported policy version: %d", policy.Version)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	return &policy, nil
}

// IsToolAllowed reports whether the policy permits a tool call.
// Evaluation order:
//  1. denied_tools -> deny
//  2. allowed_tools -> allow
//  3. mutating tools -> deny (an explicit allowed_tools entry is required)
//  4. default_action
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	for _, denied := range p.DeniedTools {
		if denied == tool {
			return false, fmt.Sprintf("tool '%s' matches denied_tools", tool)
		}
	}
	for _, name := range p.AllowedTools {
		if name == tool {
			return true, ""
		}
	}
	if isMutating(tool) {
		return false, fmt.Sprintf("mutating tool '%s' requires an allowed_tools entry", tool)
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// ValidatePolicy checks the policy configuration.
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("mcp: unsupported policy version: %d", p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("mcp: invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}
	return nil
}

// MutatingTools returns the tools that change catalog or vault state.
// These never ride on default_action; each one has to be explicitly
// allowed by the operator.
func MutatingTools() []string {
	return []string{"site_add"}
}

func isMutating(tool string) bool {
	for _, name := range MutatingTools() {
		if name == tool {
			return true
		}
	}
	return false
}
