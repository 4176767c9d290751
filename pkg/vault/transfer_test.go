package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxvault/voxvault/pkg/backup"
)

var exportPassphrase = []byte("a totally separate export phrase")

func TestBackupCreatesRestorableCopy(t *testing.T) {
	v, _ := initUnlocked(t)
	mustSave(t, v, "github.com", "p1", "octocat", "")
	mustSave(t, v, "gitlab.com", "p2", "", "")

	dst := filepath.Join(t.TempDir(), "vault-backup.db")
	if err := v.Backup(dst); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	restored := New(dst, testKDF, time.Minute, filepath.Join(t.TempDir(), "audit"))
	if err := restored.Unlock(testPassphrase); err != nil {
		t.Fatalf("Unlock of backup failed: %v", err)
	}
	defer restored.Lock()

	entries, err := restored.List()
	if err != nil {
		t.Fatalf("List on backup failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in backup, got %d", len(entries))
	}
}

func TestBackupRecordsTimestamp(t *testing.T) {
	v, clock := initUnlocked(t)
	mustSave(t, v, "github.com", "p1", "", "")

	if err := v.Backup(filepath.Join(t.TempDir(), "b.db")); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	st, err := v.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.LastBackup == nil {
		t.Fatal("expected backup timestamp to be recorded")
	}
	if !st.LastBackup.Equal(clock.Now()) {
		t.Errorf("expected backup timestamp %v, got %v", clock.Now(), st.LastBackup)
	}
}

func TestBackupRefusesExistingTarget(t *testing.T) {
	v, _ := initUnlocked(t)

	dst := filepath.Join(t.TempDir(), "b.db")
	if err := os.WriteFile(dst, []byte("junk"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.Backup(dst); err == nil {
		t.Fatal("expected error for existing backup target")
	}
}

func TestChangePassphrase(t *testing.T) {
	v, _ := initUnlocked(t)
	saved := mustSave(t, v, "github.com", "s3cret", "octocat", "memo")
	mustSave(t, v, "gitlab.com", "p2", "", "")

	newPassphrase := []byte("a brand new phrase")
	if err := v.ChangePassphrase(testPassphrase, newPassphrase); err != nil {
		t.Fatalf("ChangePassphrase failed: %v", err)
	}
	if got := v.State(); got != StateUnlocked {
		t.Fatalf("expected vault to stay unlocked, got %s", got)
	}

	got, err := v.Retrieve("github.com")
	if err != nil {
		t.Fatalf("Retrieve after rotation failed: %v", err)
	}
	if got.ID != saved.ID || got.Password != "s3cret" || got.Memo != "memo" {
		t.Errorf("entry did not survive rotation: %+v", got)
	}

	v.Lock()
	if err := v.Unlock(testPassphrase); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected old passphrase to be rejected, got %v", err)
	}
	if err := v.Unlock(newPassphrase); err != nil {
		t.Fatalf("Unlock with new passphrase failed: %v", err)
	}

	entries, err := v.List()
	if err != nil {
		t.Fatalf("List after rotation failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries after rotation, got %d", len(entries))
	}
}

func TestChangePassphraseWrongOld(t *testing.T) {
	v, _ := initUnlocked(t)
	mustSave(t, v, "github.com", "s3cret", "", "")

	err := v.ChangePassphrase([]byte("wrong"), []byte("new phrase"))
	if !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}

	v.Lock()
	if err := v.Unlock(testPassphrase); err != nil {
		t.Fatalf("expected original passphrase to still work: %v", err)
	}
}

func TestChangePassphraseEmptyNew(t *testing.T) {
	v, _ := initUnlocked(t)
	if err := v.ChangePassphrase(testPassphrase, nil); err == nil {
		t.Fatal("expected error for empty new passphrase")
	}
}

func TestChangePassphraseLeavesNoTempFile(t *testing.T) {
	v, _ := initUnlocked(t)
	mustSave(t, v, "github.com", "s3cret", "", "")

	if err := v.ChangePassphrase(testPassphrase, []byte("new phrase")); err != nil {
		t.Fatalf("ChangePassphrase failed: %v", err)
	}
	if _, err := os.Stat(v.Path() + ".new"); !os.IsNotExist(err) {
		t.Errorf("expected replacement file to be renamed away, stat: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := initUnlocked(t)
	saved := mustSave(t, src, "github.com", "s3cret", "octocat", "memo")
	mustSave(t, src, "gitlab.com", "p2", "", "")
	if _, err := src.Retrieve("github.com"); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "vault.vxb")
	if err := src.Export(exportPath, exportPassphrase); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dir := t.TempDir()
	dstPassphrase := []byte("the other vault's phrase")
	dst := New(filepath.Join(dir, "store.db"), testKDF, time.Minute, filepath.Join(dir, "audit"))
	if err := dst.Initialize(dstPassphrase); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := dst.Import(exportPath, exportPassphrase); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got := dst.State(); got != StateLocked {
		t.Fatalf("expected vault to end locked after import, got %s", got)
	}

	if err := dst.Unlock(dstPassphrase); err != nil {
		t.Fatalf("Unlock after import failed: %v", err)
	}
	defer dst.Lock()

	got, err := dst.Retrieve("github.com")
	if err != nil {
		t.Fatalf("Retrieve after import failed: %v", err)
	}
	if got.ID != saved.ID || got.Password != "s3cret" || got.Username != "octocat" || got.Memo != "memo" {
		t.Errorf("entry did not survive export/import: %+v", got)
	}
	// One access on the source before export plus this retrieve.
	if got.AccessCount != 2 {
		t.Errorf("expected access count to survive import, got %d", got.AccessCount)
	}
}

func TestExportEmptyPassphrase(t *testing.T) {
	v, _ := initUnlocked(t)
	err := v.Export(filepath.Join(t.TempDir(), "e.vxb"), nil)
	if !errors.Is(err, backup.ErrEmptyPassphrase) {
		t.Fatalf("expected ErrEmptyPassphrase, got %v", err)
	}
}

func TestImportWrongPassphrase(t *testing.T) {
	v, _ := initUnlocked(t)
	mustSave(t, v, "github.com", "s3cret", "", "")

	exportPath := filepath.Join(t.TempDir(), "vault.vxb")
	if err := v.Export(exportPath, exportPassphrase); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	err := v.Import(exportPath, []byte("wrong"))
	if !errors.Is(err, backup.ErrIntegrityFailed) {
		t.Fatalf("expected ErrIntegrityFailed, got %v", err)
	}
	if got := v.State(); got != StateUnlocked {
		t.Errorf("expected failed import to leave the vault unlocked, got %s", got)
	}

	entries, err := v.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected entries to be untouched, got %d", len(entries))
	}
}

func TestImportSnapshotsCurrentStore(t *testing.T) {
	v, _ := initUnlocked(t)
	mustSave(t, v, "old.example", "p1", "", "")

	exportPath := filepath.Join(t.TempDir(), "vault.vxb")
	if err := v.Export(exportPath, exportPassphrase); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	mustSave(t, v, "new.example", "p2", "", "")

	if err := v.Import(exportPath, exportPassphrase); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	snapshots, err := filepath.Glob(v.Path() + ".pre-import.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 pre-import snapshot, got %d", len(snapshots))
	}

	// The snapshot is a full store holding the pre-import entry set.
	snap := New(snapshots[0], testKDF, time.Minute, filepath.Join(t.TempDir(), "audit"))
	if err := snap.Unlock(testPassphrase); err != nil {
		t.Fatalf("Unlock of snapshot failed: %v", err)
	}
	defer snap.Lock()
	entries, err := snap.List()
	if err != nil {
		t.Fatalf("List on snapshot failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected snapshot to hold both pre-import entries, got %d", len(entries))
	}

	// The live store holds only the imported set.
	if err := v.Unlock(testPassphrase); err != nil {
		t.Fatalf("Unlock after import failed: %v", err)
	}
	entries, err = v.List()
	if err != nil {
		t.Fatalf("List after import failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Site != "old.example" {
		t.Errorf("expected import to replace the entry set, got %+v", entries)
	}
}

func TestImportCorruptFile(t *testing.T) {
	v, _ := initUnlocked(t)

	path := filepath.Join(t.TempDir(), "junk.vxb")
	if err := os.WriteFile(path, []byte("not a container"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.Import(path, exportPassphrase); err == nil {
		t.Fatal("expected error for corrupt import file")
	}
}
