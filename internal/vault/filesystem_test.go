package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestFSVault(t *testing.T) *FileSystemVault {
	t.Helper()
	v, err := NewFileSystemVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error: %v", err)
	}
	if err := v.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error: %v", err)
	}
	return v
}

func TestFileSystemVault_WriteAtomic(t *testing.T) {
	t.Run("writes and reads back", func(t *testing.T) {
		v := newTestFSVault(t)

		if err := v.WriteAtomic("inbox/note.md", []byte("content")); err != nil {
			t.Fatalf("WriteAtomic() error: %v", err)
		}

		exists, err := v.Exists("inbox/note.md")
		if err != nil || !exists {
			t.Fatalf("Exists() = %v, %v, want true", exists, err)
		}
		data, err := v.Read("inbox/note.md")
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if string(data) != "content" {
			t.Errorf("Read() = %q, want %q", data, "content")
		}
	})

	t.Run("leaves no staging residue", func(t *testing.T) {
		v := newTestFSVault(t)

		if err := v.WriteAtomic("inbox/note.md", []byte("content")); err != nil {
			t.Fatalf("WriteAtomic() error: %v", err)
		}

		entries, err := os.ReadDir(filepath.Join(v.Root(), ".staging"))
		if err != nil {
			t.Fatalf("reading staging dir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("staging dir holds %d entries after write, want 0", len(entries))
		}
	})

	t.Run("overwrites via rename", func(t *testing.T) {
		v := newTestFSVault(t)

		if err := v.WriteAtomic("inbox/note.md", []byte("old")); err != nil {
			t.Fatalf("first WriteAtomic() error: %v", err)
		}
		if err := v.WriteAtomic("inbox/note.md", []byte("new")); err != nil {
			t.Fatalf("second WriteAtomic() error: %v", err)
		}

		data, _ := v.Read("inbox/note.md")
		if string(data) != "new" {
			t.Errorf("Read() = %q, want %q", data, "new")
		}
	})
}

func TestFileSystemVault_Exists(t *testing.T) {
	v := newTestFSVault(t)

	exists, err := v.Exists("inbox/missing.md")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists {
		t.Error("Exists() = true for missing file")
	}
}

func TestFileSystemVault_SweepStaging(t *testing.T) {
	v := newTestFSVault(t)

	// Plant orphans the way an interrupted WriteAtomic leaves them.
	orphan := filepath.Join(v.Root(), ".staging", "note.md.tmp-12345")
	if err := os.WriteFile(orphan, []byte("partial"), 0644); err != nil {
		t.Fatalf("planting orphan: %v", err)
	}
	// Unrelated files are left alone.
	keeper := filepath.Join(v.Root(), ".staging", "README")
	if err := os.WriteFile(keeper, []byte("keep"), 0644); err != nil {
		t.Fatalf("planting keeper: %v", err)
	}

	removed, err := v.SweepStaging()
	if err != nil {
		t.Fatalf("SweepStaging() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepStaging() = %d, want 1", removed)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan still present after sweep")
	}
	if _, err := os.Stat(keeper); err != nil {
		t.Error("sweep removed a non-temp file")
	}
}
