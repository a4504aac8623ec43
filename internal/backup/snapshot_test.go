package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/testutil"
)

// fileCopyBackuper stands in for the ledger's VACUUM INTO.
type fileCopyBackuper struct {
	content []byte
	err     error
}

func (f *fileCopyBackuper) BackupTo(destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, f.content, 0600)
}

func TestSnapshotter_Snapshot(t *testing.T) {
	t.Run("writes an encrypted snapshot and removes the plaintext copy", func(t *testing.T) {
		e := newTestEncryptor(t)
		if err := e.Setup("passphrase"); err != nil {
			t.Fatalf("Setup() error: %v", err)
		}
		dir := filepath.Join(t.TempDir(), "backups")
		ledger := &fileCopyBackuper{content: []byte("ledger snapshot bytes")}

		s := NewSnapshotter(ledger, e, dir, testutil.FixedClock())
		path, err := s.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot() error: %v", err)
		}

		if !strings.HasSuffix(path, ".db.age") {
			t.Errorf("snapshot path = %q, want .db.age suffix", path)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading backup dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("backup dir holds %d files, want 1 (no plaintext residue)", len(entries))
		}

		// The snapshot decrypts back to the original bytes.
		d, err := e.Unlock("passphrase")
		if err != nil {
			t.Fatalf("Unlock() error: %v", err)
		}
		restored := filepath.Join(t.TempDir(), "restored.db")
		if err := Restore(d, path, restored); err != nil {
			t.Fatalf("Restore() error: %v", err)
		}
		data, err := os.ReadFile(restored)
		if err != nil {
			t.Fatalf("reading restored ledger: %v", err)
		}
		if !bytes.Equal(data, []byte("ledger snapshot bytes")) {
			t.Errorf("restored = %q, want original bytes", data)
		}
	})

	t.Run("fails without configured keys", func(t *testing.T) {
		e := newTestEncryptor(t)
		s := NewSnapshotter(&fileCopyBackuper{}, e, t.TempDir(), testutil.FixedClock())

		if _, err := s.Snapshot(); err == nil {
			t.Error("Snapshot() should fail when keys are not configured")
		}
	})
}
