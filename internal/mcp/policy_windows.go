//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens the policy file. Windows has no O_NOFOLLOW, and
// creating symlinks there requires elevated privileges, so the
// permission check stays the primary control.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership is a no-op on Windows, which models ownership with
// ACLs rather than a uid.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
