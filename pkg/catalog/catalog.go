// Package catalog maintains the table of canonical site names and the
// spoken aliases that resolve to them. The table lives in a JSON side
// file that is rewritten whole on every mutation.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/voxvault/voxvault/pkg/normalize"
)

var ErrEmptySite = errors.New("catalog: empty site name")

const fileMode = 0600

// Entry is one canonical site with its aliases. The canonical name is
// always present in its own alias list.
type Entry struct {
	Canonical string
	Aliases   []string
}

type sideFile struct {
	Sites map[string][]string `json:"sites"`
}

// Catalog is safe for concurrent use: reads take a shared lock, AddSite
// serializes against them and persists before returning.
type Catalog struct {
	path string

	mu      sync.RWMutex
	sites   map[string][]string
	byAlias map[string]string // alias -> canonical; first registration wins
	order   []string          // canonical names in registration order
}

// Load reads the side file at path. When the file does not exist the
// catalog is seeded with the default site table and persisted
// immediately, so a fresh install resolves common sites out of the box.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		path:    path,
		sites:   make(map[string][]string),
		byAlias: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		for _, e := range defaultSites {
			c.register(e.Canonical, e.Aliases)
		}
		if err := c.save(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var f sideFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	// JSON objects carry no order, so collisions between stored entries
	// resolve deterministically by sorted canonical name.
	names := make([]string, 0, len(f.Sites))
	for name := range f.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.register(name, f.Sites[name])
	}
	return c, nil
}

// register adds an entry to the in-memory maps without persisting.
// Callers hold mu or own the catalog exclusively.
func (c *Catalog) register(canonical string, aliases []string) {
	canonical = normalize.Normalize(canonical)
	if canonical == "" {
		return
	}
	cleaned := make([]string, 0, len(aliases)+1)
	seen := make(map[string]bool)
	add := func(a string) {
		a = normalize.Normalize(a)
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		cleaned = append(cleaned, a)
	}
	add(canonical)
	for _, a := range aliases {
		add(a)
	}

	if _, ok := c.sites[canonical]; !ok {
		c.order = append(c.order, canonical)
		c.sites[canonical] = cleaned
	} else {
		existing := c.sites[canonical]
		known := make(map[string]bool, len(existing))
		for _, a := range existing {
			known[a] = true
		}
		for _, a := range cleaned {
			if !known[a] {
				existing = append(existing, a)
			}
		}
		c.sites[canonical] = existing
	}
	for _, a := range c.sites[canonical] {
		if _, taken := c.byAlias[a]; !taken {
			c.byAlias[a] = canonical
		}
	}
}

// AddSite registers a canonical name with optional extra aliases and
// rewrites the side file before returning. Registering an existing
// canonical merges the new aliases in. An alias already owned by another
// canonical keeps its first owner.
func (c *Catalog) AddSite(canonical string, aliases ...string) error {
	if normalize.Normalize(canonical) == "" {
		return ErrEmptySite
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(canonical, aliases)
	return c.save()
}

// Entries returns a snapshot in registration order. The slices are
// copies; callers may keep them across later mutations.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		aliases := make([]string, len(c.sites[name]))
		copy(aliases, c.sites[name])
		out = append(out, Entry{Canonical: name, Aliases: aliases})
	}
	return out
}

// Canonicals returns the canonical names in registration order.
func (c *Catalog) Canonicals() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// CanonicalFor resolves an alias to its owning canonical name.
func (c *Catalog) CanonicalFor(alias string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	canonical, ok := c.byAlias[normalize.Normalize(alias)]
	return canonical, ok
}

// Has reports whether canonical is a registered canonical name.
func (c *Catalog) Has(canonical string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sites[normalize.Normalize(canonical)]
	return ok
}

// Len returns the number of canonical sites.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// save rewrites the side file. Callers hold mu.
func (c *Catalog) save() error {
	f := sideFile{Sites: c.sites}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("catalog: create directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return fmt.Errorf("catalog: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("catalog: replace %s: %w", c.path, err)
	}
	return nil
}
