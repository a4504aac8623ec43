package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inkwell/internal/pipeline"
)

// FileSystemVault is a filesystem-based implementation of the Vault
// interface. It stores exported notes in a directory structure:
//
//	<root>/
//	  inbox/
//	    <capture-id>.md   (exported notes)
//	  .staging/
//	    <name>.tmp-*      (in-flight writes, swept on recovery)
type FileSystemVault struct {
	root       string
	stagingDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	if root == "" {
		return nil, fmt.Errorf("vault root must not be empty")
	}
	return &FileSystemVault{
		root:       root,
		stagingDir: filepath.Join(root, ".staging"),
	}, nil
}

func (v *FileSystemVault) EnsureLayout() error {
	for _, dir := range []string{filepath.Join(v.root, "inbox"), v.stagingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating vault directory: %w", err)
		}
	}
	return nil
}

func (v *FileSystemVault) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(v.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking vault path %s: %w", name, err)
	}
	return true, nil
}

func (v *FileSystemVault) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(v.root, name))
	if err != nil {
		return nil, fmt.Errorf("reading vault path %s: %w", name, err)
	}
	return data, nil
}

// WriteAtomic writes data through a synced temp file in the staging
// directory, then renames it into place. The final path either holds
// the complete content or does not exist; no reader can observe a
// partial file.
func (v *FileSystemVault) WriteAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(v.stagingDir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating staging file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	// Any failure past this point must not leave the temp file behind.
	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s for %s: %w", op, name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("writing staging file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing staging file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing staging file for %s: %w", name, err)
	}

	finalPath := filepath.Join(v.root, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place for %s: %w", name, err)
	}

	// Sync the containing directory so the rename itself survives a
	// power failure.
	dir, err := os.Open(filepath.Dir(finalPath))
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("syncing directory for %s: %w", name, err)
	}
	return nil
}

func (v *FileSystemVault) SweepStaging() (int, error) {
	entries, err := os.ReadDir(v.stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		if err := os.Remove(filepath.Join(v.stagingDir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing orphaned staging file %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Root returns the vault root directory.
func (v *FileSystemVault) Root() string {
	return v.root
}

// Compile-time check that FileSystemVault implements pipeline.Vault
var _ pipeline.Vault = (*FileSystemVault)(nil)
