// Package vault stores credentials in a single SQLite file where every
// entry field is sealed with AES-256-GCM before it reaches disk.
//
// Key hierarchy: the passphrase derives a key-encryption key (Argon2id)
// that wraps a random data-encryption key; the wrapped key, its salt,
// the KDF parameters, and a separate passphrase verification record all
// live inside the store file, so the file is self-contained. SQLite is
// only the container: the sole plaintext column is a SHA-256 lookup
// digest of the site name.
//
// A vault is Uninitialized, Locked, or Unlocked. The decrypted session
// key exists in memory only while Unlocked and is wiped on lock. Every
// operation re-checks the idle deadline before acting and extends it
// only when the operation succeeds.
package vault

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxvault/voxvault/pkg/audit"
	"github.com/voxvault/voxvault/pkg/crypto"
)

// DefaultIdleTimeout is how long an unlocked vault may sit idle before
// the next operation auto-locks it.
const DefaultIdleTimeout = 5 * time.Minute

const (
	storeSchemaVersion = 1
	metaLastBackup     = "last_backup"
)

var (
	// ErrVaultExists is returned when initializing over an existing store.
	ErrVaultExists = errors.New("vault: vault already exists")

	// ErrVaultNotFound is returned when unlocking a store that was
	// never initialized.
	ErrVaultNotFound = errors.New("vault: vault not found")

	// ErrVaultLocked is returned by operations that need an unlocked vault.
	ErrVaultLocked = errors.New("vault: vault is locked")

	// ErrInvalidPassphrase is returned when a passphrase fails to
	// unwrap the data key or fails record verification.
	ErrInvalidPassphrase = errors.New("vault: invalid passphrase")

	// ErrNotFound is returned when no entry exists for a site. It is a
	// normal outcome, not a failure.
	ErrNotFound = errors.New("vault: entry not found")
)

// State is the lifecycle position of a vault.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLocked        State = "locked"
	StateUnlocked      State = "unlocked"
)

// Entry is one stored credential. Site is the unique key.
type Entry struct {
	ID           string     `json:"id"`
	Site         string     `json:"site"`
	Username     string     `json:"username,omitempty"`
	Password     string     `json:"password"`
	Memo         string     `json:"memo,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// Stats summarizes the store without exposing entry contents.
type Stats struct {
	State      State      `json:"state"`
	Entries    int        `json:"entries"`
	Accesses   int64      `json:"accesses"`
	StoreBytes int64      `json:"store_bytes"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
}

// DiskSpaceInfo reports filesystem capacity for the store's volume.
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
	UsedPct   int    `json:"used_pct"`
}

// Vault owns the store file, the session key, and the audit trail.
type Vault struct {
	path        string
	kdf         crypto.Params
	idleTimeout time.Duration
	audit       *audit.Logger

	mu           sync.Mutex
	db           *sql.DB
	dek          []byte
	lastActivity time.Time

	now func() time.Time
}

// New prepares a vault handle for the store at path. Zero kdf selects
// the default Argon2id parameters, a non-positive idleTimeout selects
// DefaultIdleTimeout, and an empty auditDir places the audit log next
// to the store. No file is touched until Initialize or Unlock.
func New(path string, kdf crypto.Params, idleTimeout time.Duration, auditDir string) *Vault {
	if kdf == (crypto.Params{}) {
		kdf = crypto.DefaultParams()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if auditDir == "" {
		auditDir = filepath.Join(filepath.Dir(path), "audit")
	}
	return &Vault{
		path:        path,
		kdf:         kdf,
		idleTimeout: idleTimeout,
		audit:       audit.NewLogger(auditDir),
		now:         time.Now,
	}
}

// Initialize creates a fresh store and leaves the vault unlocked.
func (v *Vault) Initialize(passphrase []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(passphrase) == 0 {
		return errors.New("vault: passphrase must not be empty")
	}
	if v.exists() {
		return ErrVaultExists
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return fmt.Errorf("vault: failed to create vault directory: %w", err)
	}

	db, err := openStore(v.path)
	if err != nil {
		return fmt.Errorf("vault: failed to create store: %w", err)
	}
	dek, err := v.initStore(db, v.path, passphrase)
	if err != nil {
		_ = db.Close()
		_ = os.Remove(v.path)
		return err
	}

	v.db = db
	v.dek = dek
	v.lastActivity = v.now()

	_ = v.audit.SetKey(v.dek)
	_ = v.audit.LogSuccess(audit.OpVaultInit, "")
	return nil
}

// initStore writes the schema, key material, and schema stamp into a
// fresh store file and returns the new data key.
func (v *Vault) initStore(db *sql.DB, path string, passphrase []byte) ([]byte, error) {
	if err := createTables(db); err != nil {
		return nil, err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	dek, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("vault: failed to generate data key: %w", err)
	}

	kek := v.kdf.DeriveKey(passphrase, salt)
	encDEK, dekNonce, err := crypto.Encrypt(kek, dek)
	crypto.SecureWipe(kek)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to wrap data key: %w", err)
	}

	rec, err := v.kdf.HashPassphrase(passphrase)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to hash passphrase: %w", err)
	}
	masterJSON, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encode passphrase record: %w", err)
	}
	kdfJSON, err := json.Marshal(v.kdf)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encode kdf parameters: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO vault_keys (id, salt, kdf_params, encrypted_dek, dek_nonce, master_hash, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		salt, string(kdfJSON), encDEK, dekNonce, string(masterJSON),
		v.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to store key material: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, storeSchemaVersion); err != nil {
		return nil, fmt.Errorf("vault: failed to stamp schema version: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		return nil, fmt.Errorf("vault: failed to restrict store permissions: %w", err)
	}
	return dek, nil
}

// Unlock verifies the passphrase and loads the session key. A wrong
// passphrase leaves the vault Locked.
func (v *Vault) Unlock(passphrase []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stateLocked() == StateUnlocked {
		v.lastActivity = v.now()
		return nil
	}
	if !v.exists() {
		return ErrVaultNotFound
	}

	db, err := openStore(v.path)
	if err != nil {
		return fmt.Errorf("vault: failed to open store: %w", err)
	}
	dek, err := v.unlockStore(db, passphrase)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, ErrInvalidPassphrase) {
			_ = v.audit.LogError(audit.OpVaultUnlockFailed, "", err)
		}
		return err
	}

	v.db = db
	v.dek = dek
	v.lastActivity = v.now()

	_ = v.audit.SetKey(v.dek)
	_ = v.audit.LogSuccess(audit.OpVaultUnlock, "")
	return nil
}

// unlockStore reads the key material and returns the unwrapped data
// key. The unwrapped key is trusted only if the stored passphrase
// record verifies as well; any mismatch fails closed.
func (v *Vault) unlockStore(db *sql.DB, passphrase []byte) ([]byte, error) {
	if err := checkSchema(db); err != nil {
		return nil, err
	}

	var (
		salt, encDEK, dekNonce []byte
		kdfJSON, masterJSON    string
	)
	err := db.QueryRow(`
		SELECT salt, kdf_params, encrypted_dek, dek_nonce, master_hash
		FROM vault_keys WHERE id = 1`).
		Scan(&salt, &kdfJSON, &encDEK, &dekNonce, &masterJSON)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read key material: %w", err)
	}

	var kdf crypto.Params
	if err := json.Unmarshal([]byte(kdfJSON), &kdf); err != nil {
		return nil, fmt.Errorf("vault: corrupt kdf parameters: %w", err)
	}
	var rec crypto.PassphraseRecord
	if err := json.Unmarshal([]byte(masterJSON), &rec); err != nil {
		return nil, fmt.Errorf("vault: corrupt passphrase record: %w", err)
	}

	kek := kdf.DeriveKey(passphrase, salt)
	dek, err := crypto.Decrypt(kek, encDEK, dekNonce)
	crypto.SecureWipe(kek)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	if !crypto.VerifyPassphrase(rec, passphrase) {
		crypto.SecureWipe(dek)
		return nil, ErrInvalidPassphrase
	}
	return dek, nil
}

// Lock wipes the session key and closes the store. Safe to call in any
// state.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

// lockLocked releases everything the unlocked state owns. Callers hold v.mu.
func (v *Vault) lockLocked() {
	if v.dek == nil {
		return
	}
	_ = v.audit.LogSuccess(audit.OpVaultLock, "")
	crypto.SecureWipe(v.dek)
	v.dek = nil
	if v.db != nil {
		_ = v.db.Close()
		v.db = nil
	}
	v.audit.ClearKey()
}

// State reports the current lifecycle state, auto-locking first if the
// idle deadline has passed.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *Vault) stateLocked() State {
	if v.dek != nil {
		if v.now().Sub(v.lastActivity) > v.idleTimeout {
			v.lockLocked()
		} else {
			return StateUnlocked
		}
	}
	if v.exists() {
		return StateLocked
	}
	return StateUninitialized
}

// ensureUnlockedLocked gates an operation on the unlocked state,
// applying the lazy idle check. It does not extend the deadline; ops
// call touchLocked on success.
func (v *Vault) ensureUnlockedLocked() error {
	if v.stateLocked() != StateUnlocked {
		return ErrVaultLocked
	}
	return nil
}

func (v *Vault) touchLocked() {
	v.lastActivity = v.now()
}

// Stats reports store state and size without extending the idle deadline.
func (v *Vault) Stats() (*Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := &Stats{State: v.stateLocked()}
	if fi, err := os.Stat(v.path); err == nil {
		st.StoreBytes = fi.Size()
	}
	if st.State != StateUnlocked {
		return st, nil
	}

	if err := v.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&st.Entries); err != nil {
		return nil, fmt.Errorf("vault: failed to count entries: %w", err)
	}
	accesses, err := v.sumAccessesLocked()
	if err != nil {
		return nil, err
	}
	st.Accesses = accesses

	var value string
	err = v.db.QueryRow(`SELECT value FROM vault_meta WHERE key = ?`, metaLastBackup).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("vault: failed to read metadata: %w", err)
	default:
		if t, perr := time.Parse(time.RFC3339, value); perr == nil {
			st.LastBackup = &t
		}
	}
	return st, nil
}

// AuditLogger exposes the vault's audit trail so callers can record
// their own events (denied session actions) and run verification.
func (v *Vault) AuditLogger() *audit.Logger {
	return v.audit
}

// AuditVerify checks the audit chain under the current session key.
func (v *Vault) AuditVerify() (*audit.VerifyResult, error) {
	v.mu.Lock()
	if err := v.ensureUnlockedLocked(); err != nil {
		v.mu.Unlock()
		return nil, err
	}
	v.touchLocked()
	v.mu.Unlock()

	return v.audit.Verify()
}

// Path returns the store file path.
func (v *Vault) Path() string {
	return v.path
}

func (v *Vault) exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// openStore opens the SQLite store on a single connection. The store
// is only ever touched by one process at a time; the busy timeout
// covers short-lived external readers such as backup tooling.
func openStore(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vault_keys (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			salt BLOB NOT NULL,
			kdf_params TEXT NOT NULL,
			encrypted_dek BLOB NOT NULL,
			dek_nonce BLOB NOT NULL,
			master_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("vault: failed to create vault_keys: %w", err)
	}

	// Entry fields are sealed one column at a time; the only plaintext
	// column is the lookup digest.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			site_hash TEXT PRIMARY KEY,
			site BLOB NOT NULL,
			username BLOB NOT NULL,
			password BLOB NOT NULL,
			memo BLOB NOT NULL,
			meta BLOB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("vault: failed to create entries: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vault_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("vault: failed to create vault_meta: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("vault: failed to create schema_version: %w", err)
	}
	return nil
}

func checkSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("vault: failed to read schema version: %w", err)
	}
	if version != storeSchemaVersion {
		return fmt.Errorf("vault: unsupported schema version %d (want %d)", version, storeSchemaVersion)
	}
	return nil
}

// hashSite returns the plaintext lookup digest for a site key.
func hashSite(site string) string {
	sum := sha256.Sum256([]byte(site))
	return hex.EncodeToString(sum[:])
}

// encryptWithNonce seals plaintext under key and prepends the nonce to
// the ciphertext so each column is a single self-contained blob.
func encryptWithNonce(key, plaintext []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// decryptWithNonce opens a nonce-prepended blob.
func decryptWithNonce(key, blob []byte) ([]byte, error) {
	if len(blob) < crypto.NonceLength {
		return nil, crypto.ErrCiphertextTooShort
	}
	return crypto.Decrypt(key, blob[crypto.NonceLength:], blob[:crypto.NonceLength])
}
