package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/voxvault/voxvault/pkg/audit"
	"github.com/voxvault/voxvault/pkg/backup"
	"github.com/voxvault/voxvault/pkg/crypto"
)

// Backup writes a consistent snapshot of the encrypted store to dst.
// The snapshot is a byte-for-byte usable store file and is never
// decrypted on the way out; restoring is opening it with the same
// passphrase. An existing dst is refused.
func (v *Vault) Backup(dst string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}
	if err := v.snapshotLocked(dst); err != nil {
		return err
	}
	if err := v.setMetaLocked(metaLastBackup, v.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	_ = v.audit.LogSuccess(audit.OpBackupCreate, "")
	v.touchLocked()
	return nil
}

// Export seals every entry into a portable container under an
// independent passphrase. The container can be imported into any
// vault; it shares no key material with the store.
func (v *Vault) Export(dst string, backupPassphrase []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}

	entries, err := v.loadAllLocked()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("vault: failed to encode entries: %w", err)
	}
	blob, err := backup.Seal(payload, backupPassphrase, v.kdf, len(entries), v.now())
	crypto.SecureWipe(payload)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return fmt.Errorf("vault: failed to create export directory: %w", err)
	}
	if err := os.WriteFile(dst, blob, 0600); err != nil {
		return fmt.Errorf("vault: failed to write export: %w", err)
	}

	_ = v.audit.LogSuccess(audit.OpBackupExport, "")
	v.touchLocked()
	return nil
}

// Import replaces the entry set with the contents of an exported
// container. The current store is snapshotted beside itself first, so
// a bad import is always recoverable. The vault ends locked; the next
// operation requires a fresh unlock.
func (v *Vault) Import(src string, backupPassphrase []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}

	blob, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("vault: failed to read import file: %w", err)
	}
	payload, _, err := backup.Open(blob, backupPassphrase)
	if err != nil {
		return err
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		crypto.SecureWipe(payload)
		return fmt.Errorf("vault: corrupt export payload: %w", err)
	}
	crypto.SecureWipe(payload)

	snapshot := fmt.Sprintf("%s.pre-import.%d", v.path, v.now().Unix())
	if err := v.snapshotLocked(snapshot); err != nil {
		return err
	}

	if err := v.replaceEntriesLocked(entries); err != nil {
		return err
	}

	_ = v.audit.LogSuccess(audit.OpBackupImport, "")
	v.lockLocked()
	return nil
}

// replaceEntriesLocked swaps the whole entry set in one transaction,
// re-sealing each entry under the current session key.
func (v *Vault) replaceEntriesLocked(entries []Entry) error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("vault: failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("vault: failed to clear entries: %w", err)
	}
	now := v.now().UTC()
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = e.CreatedAt
		}
		sealed, err := sealEntry(v.dek, e)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO entries (site_hash, site, username, password, memo, meta)
			VALUES (?, ?, ?, ?, ?, ?)`,
			hashSite(e.Site), sealed.site, sealed.username, sealed.password, sealed.memo, sealed.meta)
		if err != nil {
			return fmt.Errorf("vault: failed to import entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault: failed to commit import: %w", err)
	}
	return nil
}

// ChangePassphrase rebuilds the store under a fresh salt and a fresh
// data key, re-sealing every entry, then atomically replaces the old
// store file. The vault stays unlocked under the new key.
func (v *Vault) ChangePassphrase(oldPassphrase, newPassphrase []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureUnlockedLocked(); err != nil {
		return err
	}
	if err := v.verifyPassphraseLocked(oldPassphrase); err != nil {
		return err
	}
	if len(newPassphrase) == 0 {
		return errors.New("vault: passphrase must not be empty")
	}

	entries, err := v.loadAllLocked()
	if err != nil {
		return err
	}

	newPath := v.path + ".new"
	_ = os.Remove(newPath)
	db2, err := openStore(newPath)
	if err != nil {
		return fmt.Errorf("vault: failed to create replacement store: %w", err)
	}
	fail := func(err error) error {
		_ = db2.Close()
		_ = os.Remove(newPath)
		return err
	}

	dek2, err := v.initStore(db2, newPath, newPassphrase)
	if err != nil {
		return fail(err)
	}
	for i := range entries {
		sealed, err := sealEntry(dek2, &entries[i])
		if err != nil {
			return fail(err)
		}
		_, err = db2.Exec(`
			INSERT INTO entries (site_hash, site, username, password, memo, meta)
			VALUES (?, ?, ?, ?, ?, ?)`,
			hashSite(entries[i].Site), sealed.site, sealed.username, sealed.password, sealed.memo, sealed.meta)
		if err != nil {
			return fail(fmt.Errorf("vault: failed to reseal entry: %w", err))
		}
	}
	if err := v.copyMetaLocked(db2); err != nil {
		return fail(err)
	}
	if err := db2.Close(); err != nil {
		return fail(fmt.Errorf("vault: failed to finalize replacement store: %w", err))
	}

	_ = v.db.Close()
	v.db = nil
	if err := os.Rename(newPath, v.path); err != nil {
		_ = os.Remove(newPath)
		if db, rerr := openStore(v.path); rerr == nil {
			v.db = db
		} else {
			crypto.SecureWipe(v.dek)
			v.dek = nil
			v.audit.ClearKey()
		}
		return fmt.Errorf("vault: failed to replace store: %w", err)
	}
	db, err := openStore(v.path)
	if err != nil {
		crypto.SecureWipe(v.dek)
		v.dek = nil
		crypto.SecureWipe(dek2)
		v.audit.ClearKey()
		return fmt.Errorf("vault: failed to reopen store: %w", err)
	}

	v.db = db
	crypto.SecureWipe(v.dek)
	v.dek = dek2

	_ = v.audit.SetKey(v.dek)
	_ = v.audit.LogSuccess(audit.OpVaultRotate, "")
	v.touchLocked()
	return nil
}

// verifyPassphraseLocked checks a passphrase against the stored record.
func (v *Vault) verifyPassphraseLocked(passphrase []byte) error {
	var masterJSON string
	if err := v.db.QueryRow(`SELECT master_hash FROM vault_keys WHERE id = 1`).Scan(&masterJSON); err != nil {
		return fmt.Errorf("vault: failed to read passphrase record: %w", err)
	}
	var rec crypto.PassphraseRecord
	if err := json.Unmarshal([]byte(masterJSON), &rec); err != nil {
		return fmt.Errorf("vault: corrupt passphrase record: %w", err)
	}
	if !crypto.VerifyPassphrase(rec, passphrase) {
		return ErrInvalidPassphrase
	}
	return nil
}

// snapshotLocked writes a consistent copy of the store to dst, which
// must not exist.
func (v *Vault) snapshotLocked(dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("vault: backup target already exists: %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return fmt.Errorf("vault: failed to create backup directory: %w", err)
	}
	if _, err := v.db.Exec(`VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("vault: failed to snapshot store: %w", err)
	}
	if err := os.Chmod(dst, 0600); err != nil {
		return fmt.Errorf("vault: failed to restrict backup permissions: %w", err)
	}
	return nil
}

func (v *Vault) setMetaLocked(key, value string) error {
	_, err := v.db.Exec(`
		INSERT INTO vault_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("vault: failed to write metadata: %w", err)
	}
	return nil
}

// copyMetaLocked carries vault_meta (the backup timestamp) into a
// replacement store.
func (v *Vault) copyMetaLocked(dst *sql.DB) error {
	rows, err := v.db.Query(`SELECT key, value FROM vault_meta`)
	if err != nil {
		return fmt.Errorf("vault: failed to read metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("vault: failed to read metadata: %w", err)
		}
		if _, err := dst.Exec(`INSERT INTO vault_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("vault: failed to copy metadata: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("vault: failed to read metadata: %w", err)
	}
	return nil
}
