// Package audit appends vault operation events to monthly JSONL logs
// chained with HMAC-SHA256 for tamper evidence.
//
// The chain key is derived from the vault session key with HKDF, so
// events can only be written or verified while a vault session is
// active. Site names never appear in plaintext: they are masked with
// an HMAC under the same key.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/voxvault/voxvault/pkg/crypto"
)

// MinDiskSpace is the minimum free space required before an event is written.
const MinDiskSpace = 1024 * 1024 // 1 MB

// Operation names recorded in events.
const (
	OpVaultInit         = "vault.init"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultRotate       = "vault.rotate"

	OpEntrySave     = "entry.save"
	OpEntryRetrieve = "entry.retrieve"
	OpEntryDelete   = "entry.delete"

	OpBackupCreate = "backup.create"
	OpBackupExport = "backup.export"
	OpBackupImport = "backup.import"

	OpSessionDenied = "session.denied"
)

// Result values for events.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

const (
	eventVersion   = 1
	chainGenesis   = "genesis"
	chainStateFile = "audit.meta"
	hkdfInfo       = "voxvault-audit-v1"
)

// ErrNoKey is returned when an event is logged or verified without an
// active session key.
var ErrNoKey = errors.New("audit: chain key not set")

// Event is a single audit record. Site names are stored only as an
// HMAC digest so the log leaks nothing about vault contents.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"`
	Operation string `json:"op"`
	SiteHMAC  string `json:"site_hmac,omitempty"`
	Result    string `json:"result"`
	Err       string `json:"err,omitempty"`
	Chain     Chain  `json:"chain"`
}

// Chain links an event to its predecessor for tamper detection.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// VerifyResult reports the outcome of a chain verification.
type VerifyResult struct {
	Valid   bool     `json:"valid"`
	Records int      `json:"records"`
	Errors  []string `json:"errors,omitempty"`
}

// chainState is the persisted tail of the chain between processes.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger writes chained events under a directory, one file per month.
type Logger struct {
	dir string

	mu       sync.Mutex
	hmacKey  []byte
	sequence int64
	prevHash string
}

// NewLogger returns a logger rooted at dir. Events are rejected until
// SetKey provides a session key.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir, prevHash: chainGenesis}
}

// SetKey derives the chain HMAC key from the vault session key and
// reloads the persisted chain tail so new events extend the old chain.
func (l *Logger) SetKey(sessionKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, sessionKey, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return fmt.Errorf("audit: failed to derive chain key: %w", err)
	}
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		// First run for this directory.
		l.sequence = 0
		l.prevHash = chainGenesis
	}
	return nil
}

// ClearKey wipes the chain key. Called when the vault locks.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = nil
}

// Log appends one event to the current month's file and advances the chain.
func (l *Logger) Log(op, site, result, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrNoKey
	}
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event := Event{
		Version:   eventVersion,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Result:    result,
		Err:       errMsg,
	}
	if site != "" {
		event.SiteHMAC = l.mask(site)
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.recordHMAC(&event)
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, site string) error {
	return l.Log(op, site, ResultSuccess, "")
}

// LogError records a failed operation.
func (l *Logger) LogError(op, site string, opErr error) error {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	return l.Log(op, site, ResultError, msg)
}

// LogDenied records an operation that was refused before it ran.
func (l *Logger) LogDenied(op, site, reason string) error {
	return l.Log(op, site, ResultDenied, reason)
}

// mask returns the hex HMAC of a site name under the chain key.
func (l *Logger) mask(site string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(site))
	return hex.EncodeToString(mac.Sum(nil))
}

// recordHMAC computes the chain HMAC over every significant field.
func (l *Logger) recordHMAC(e *Event) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version,
		e.ID,
		e.Timestamp,
		e.Operation,
		e.SiteHMAC,
		e.Result,
		e.Err,
		e.Chain.Sequence,
		e.Chain.PrevHash,
	)
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// writeEvent appends the event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	name := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.dir, chainStateFile))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, chainStateFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// Verify walks every log file in order and checks sequence numbers,
// chain links, and per-record HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrNoKey
	}

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := chainGenesis
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for i := range events {
			event := &events[i]
			result.Records++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}
			if event.Chain.PrevHash != expectedPrev {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s", event.ID))
			}
			if event.Chain.HMAC != l.recordHMAC(event) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"hmac mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrev = event.Chain.HMAC
			expectedSeq++
		}
	}
	return result, nil
}

// ListEvents returns events in chronological order. A limit of 0
// returns everything; otherwise the most recent limit events.
// Listing does not require the chain key.
func (l *Logger) ListEvents(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		events = append(events, fileEvents...)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// logFiles lists monthly log files sorted by name, which is
// chronological for the YYYY-MM naming scheme.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for {
		var event Event
		if err := dec.Decode(&event); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Path returns the audit log directory.
func (l *Logger) Path() string {
	return l.dir
}
