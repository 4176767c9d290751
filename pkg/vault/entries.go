package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxvault/voxvault/pkg/audit"
)

// entryMeta is the sealed bookkeeping blob stored beside the field columns.
type entryMeta struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// sealedEntry mirrors one entries row minus the lookup digest.
type sealedEntry struct {
	site, username, password, memo, meta []byte
}

// Save upserts the credential for a site. The first save creates the
// entry; later saves replace password, username, and memo in place and
// advance updated_at while keeping the identity and access counters.
// The bool reports whether a new entry was created.
func (v *Vault) Save(site, password, username, memo string) (*Entry, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(site) == "" {
		return nil, false, errors.New("vault: site must not be empty")
	}
	if password == "" {
		return nil, false, errors.New("vault: password must not be empty")
	}

	now := v.now().UTC()
	entry := &Entry{
		ID:        uuid.NewString(),
		Site:      site,
		Username:  username,
		Password:  password,
		Memo:      memo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	siteHash := hashSite(site)
	created := true
	switch old, err := v.loadMetaLocked(siteHash); {
	case err == nil:
		entry.ID = old.ID
		entry.CreatedAt = old.CreatedAt
		entry.AccessCount = old.AccessCount
		entry.LastAccessed = old.LastAccessed
		created = false
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	sealed, err := sealEntry(v.dek, entry)
	if err != nil {
		return nil, false, err
	}
	_, err = v.db.Exec(`
		INSERT INTO entries (site_hash, site, username, password, memo, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_hash) DO UPDATE SET
			site = excluded.site,
			username = excluded.username,
			password = excluded.password,
			memo = excluded.memo,
			meta = excluded.meta`,
		siteHash, sealed.site, sealed.username, sealed.password, sealed.memo, sealed.meta)
	if err != nil {
		return nil, false, fmt.Errorf("vault: failed to save entry: %w", err)
	}

	_ = v.audit.LogSuccess(audit.OpEntrySave, site)
	v.touchLocked()
	return entry, created, nil
}

// Retrieve looks up a site by exact key, bumps its access counter, and
// returns the entry including the bump. A miss returns ErrNotFound.
func (v *Vault) Retrieve(site string) (*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}

	siteHash := hashSite(site)
	var sealed sealedEntry
	err := v.db.QueryRow(`
		SELECT site, username, password, memo, meta
		FROM entries WHERE site_hash = ?`, siteHash).
		Scan(&sealed.site, &sealed.username, &sealed.password, &sealed.memo, &sealed.meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to load entry: %w", err)
	}

	entry, err := openEntry(v.dek, &sealed)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	entry.AccessCount++
	entry.LastAccessed = &now
	metaBlob, err := sealMeta(v.dek, entry)
	if err != nil {
		return nil, err
	}
	if _, err := v.db.Exec(`UPDATE entries SET meta = ? WHERE site_hash = ?`, metaBlob, siteHash); err != nil {
		return nil, fmt.Errorf("vault: failed to record access: %w", err)
	}

	_ = v.audit.LogSuccess(audit.OpEntryRetrieve, site)
	v.touchLocked()
	return entry, nil
}

// Delete removes the entry for a site and reports whether one existed.
func (v *Vault) Delete(site string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return false, err
	}

	res, err := v.db.Exec(`DELETE FROM entries WHERE site_hash = ?`, hashSite(site))
	if err != nil {
		return false, fmt.Errorf("vault: failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("vault: failed to delete entry: %w", err)
	}

	v.touchLocked()
	if n == 0 {
		return false, nil
	}
	_ = v.audit.LogSuccess(audit.OpEntryDelete, site)
	return true, nil
}

// List returns every entry sorted by site.
func (v *Vault) List() ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	entries, err := v.loadAllLocked()
	if err != nil {
		return nil, err
	}
	sortBySite(entries)
	v.touchLocked()
	return entries, nil
}

// Search returns entries whose site or username contains query.
// Matching is case-sensitive against the stored values; spoken-input
// normalization happens upstream in the resolver.
func (v *Vault) Search(query string) ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return nil, err
	}
	all, err := v.loadAllLocked()
	if err != nil {
		return nil, err
	}

	var matched []Entry
	for _, e := range all {
		if strings.Contains(e.Site, query) || strings.Contains(e.Username, query) {
			matched = append(matched, e)
		}
	}
	sortBySite(matched)
	v.touchLocked()
	return matched, nil
}

func sortBySite(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Site < entries[j].Site })
}

// loadMetaLocked reads only the sealed metadata blob for a site.
func (v *Vault) loadMetaLocked(siteHash string) (*entryMeta, error) {
	var blob []byte
	err := v.db.QueryRow(`SELECT meta FROM entries WHERE site_hash = ?`, siteHash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to load entry metadata: %w", err)
	}

	metaJSON, err := decryptWithNonce(v.dek, blob)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry metadata: %w", err)
	}
	var meta entryMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("vault: corrupt entry metadata: %w", err)
	}
	return &meta, nil
}

// sumAccessesLocked totals the access counters across all entries. The
// result set is fully consumed before returning so the store's single
// connection is free for the caller's next query.
func (v *Vault) sumAccessesLocked() (int64, error) {
	rows, err := v.db.Query(`SELECT meta FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("vault: failed to read entry metadata: %w", err)
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return 0, fmt.Errorf("vault: failed to scan entry metadata: %w", err)
		}
		metaJSON, err := decryptWithNonce(v.dek, blob)
		if err != nil {
			return 0, fmt.Errorf("vault: failed to open entry metadata: %w", err)
		}
		var meta entryMeta
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return 0, fmt.Errorf("vault: corrupt entry metadata: %w", err)
		}
		total += meta.AccessCount
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("vault: failed to read entry metadata: %w", err)
	}
	return total, nil
}

// loadAllLocked decrypts every entry in store order.
func (v *Vault) loadAllLocked() ([]Entry, error) {
	rows, err := v.db.Query(`SELECT site, username, password, memo, meta FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var sealed sealedEntry
		if err := rows.Scan(&sealed.site, &sealed.username, &sealed.password, &sealed.memo, &sealed.meta); err != nil {
			return nil, fmt.Errorf("vault: failed to scan entry: %w", err)
		}
		entry, err := openEntry(v.dek, &sealed)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: failed to list entries: %w", err)
	}
	return entries, nil
}

// sealMeta seals the bookkeeping fields of an entry into one blob.
func sealMeta(key []byte, e *Entry) ([]byte, error) {
	metaJSON, err := json.Marshal(entryMeta{
		ID:           e.ID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		AccessCount:  e.AccessCount,
		LastAccessed: e.LastAccessed,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encode entry metadata: %w", err)
	}
	return encryptWithNonce(key, metaJSON)
}

// sealEntry seals every entry field into its own column blob.
func sealEntry(key []byte, e *Entry) (*sealedEntry, error) {
	var (
		s   sealedEntry
		err error
	)
	if s.site, err = encryptWithNonce(key, []byte(e.Site)); err != nil {
		return nil, err
	}
	if s.username, err = encryptWithNonce(key, []byte(e.Username)); err != nil {
		return nil, err
	}
	if s.password, err = encryptWithNonce(key, []byte(e.Password)); err != nil {
		return nil, err
	}
	if s.memo, err = encryptWithNonce(key, []byte(e.Memo)); err != nil {
		return nil, err
	}
	if s.meta, err = sealMeta(key, e); err != nil {
		return nil, err
	}
	return &s, nil
}

// openEntry reverses sealEntry.
func openEntry(key []byte, s *sealedEntry) (*Entry, error) {
	site, err := decryptWithNonce(key, s.site)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry: %w", err)
	}
	username, err := decryptWithNonce(key, s.username)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry: %w", err)
	}
	password, err := decryptWithNonce(key, s.password)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry: %w", err)
	}
	memo, err := decryptWithNonce(key, s.memo)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry: %w", err)
	}
	metaJSON, err := decryptWithNonce(key, s.meta)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open entry: %w", err)
	}

	var meta entryMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("vault: corrupt entry metadata: %w", err)
	}

	return &Entry{
		ID:           meta.ID,
		Site:         string(site),
		Username:     string(username),
		Password:     string(password),
		Memo:         string(memo),
		CreatedAt:    meta.CreatedAt,
		UpdatedAt:    meta.UpdatedAt,
		AccessCount:  meta.AccessCount,
		LastAccessed: meta.LastAccessed,
	}, nil
}
