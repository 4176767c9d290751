// Package cli provides shared helpers for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// FilterSites returns the site names matching a glob pattern, in sorted
// order. An empty pattern matches everything. Matching follows
// filepath.Match semantics, so a pattern without glob characters selects
// the exact site name. A pattern that matches nothing returns an empty
// slice, not an error; only malformed patterns fail.
func FilterSites(pattern string, sites []string) ([]string, error) {
	if pattern == "" {
		return SortSites(sites), nil
	}

	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var matches []string
	for _, site := range sites {
		ok, err := filepath.Match(pattern, site)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, site)
		}
	}

	sort.Strings(matches)
	return matches, nil
}

// HasGlob reports whether a pattern contains glob metacharacters.
// Commands use this to distinguish "filter matched nothing" from
// "named site does not exist" in their messaging.
func HasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// SortSites returns a sorted copy, leaving the input unchanged.
func SortSites(sites []string) []string {
	sorted := make([]string, len(sites))
	copy(sorted, sites)
	sort.Strings(sorted)
	return sorted
}
