package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"inkwell/internal/pipeline"
)

// LedgerBackuper is the slice of the ledger the snapshotter needs: a
// consistent point-in-time copy to a file.
type LedgerBackuper interface {
	BackupTo(destPath string) error
}

// Snapshotter produces encrypted point-in-time copies of the ledger.
type Snapshotter struct {
	ledger    LedgerBackuper
	encryptor *AgeEncryptor
	dir       string
	clock     pipeline.Clock
}

// NewSnapshotter creates a Snapshotter writing into dir.
func NewSnapshotter(ledger LedgerBackuper, encryptor *AgeEncryptor, dir string, clock pipeline.Clock) *Snapshotter {
	return &Snapshotter{ledger: ledger, encryptor: encryptor, dir: dir, clock: clock}
}

// Snapshot copies the ledger to a temp file, encrypts it into the
// backup directory, and removes the plaintext copy. Returns the path of
// the encrypted snapshot.
func (s *Snapshotter) Snapshot() (string, error) {
	if !s.encryptor.IsConfigured() {
		return "", fmt.Errorf("backup keys not configured (run config init)")
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	stamp := s.clock.Now().UTC().Format("20060102T150405Z")
	plainPath := filepath.Join(s.dir, "ledger-"+stamp+".db.tmp")
	finalPath := filepath.Join(s.dir, "ledger-"+stamp+".db.age")

	if err := s.ledger.BackupTo(plainPath); err != nil {
		return "", fmt.Errorf("copying ledger: %w", err)
	}
	// The plaintext copy must not outlive this function.
	defer os.Remove(plainPath)

	plain, err := os.Open(plainPath)
	if err != nil {
		return "", fmt.Errorf("opening ledger copy: %w", err)
	}
	defer plain.Close()

	out, err := os.OpenFile(finalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}

	if err := s.encryptor.Encrypt(plain, out); err != nil {
		out.Close()
		os.Remove(finalPath)
		return "", fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}

	return finalPath, nil
}

// Restore decrypts a snapshot file to destPath using an unlocked Decryptor.
func Restore(d *Decryptor, snapshotPath, destPath string) error {
	in, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating restore target: %w", err)
	}

	if err := d.Decrypt(in, out); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing restore target: %w", err)
	}
	return nil
}
