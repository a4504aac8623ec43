package hash_test

import (
	"testing"
	"time"

	"inkwell/internal/hash"
)

func TestContent(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := hash.Content([]byte("hello"))
		b := hash.Content([]byte("hello"))
		if a != b {
			t.Errorf("Content() not deterministic: %s != %s", a, b)
		}
	})

	t.Run("differs for different content", func(t *testing.T) {
		a := hash.Content([]byte("hello"))
		b := hash.Content([]byte("hello "))
		if a == b {
			t.Error("Content() collision for different inputs")
		}
	})

	t.Run("known value", func(t *testing.T) {
		// sha256("hello")
		want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
		if got := hash.Content([]byte("hello")).String(); got != want {
			t.Errorf("Content(hello) = %s, want %s", got, want)
		}
	})
}

func TestStaging(t *testing.T) {
	mtime := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("is deterministic", func(t *testing.T) {
		a := hash.Staging("/memos/a.m4a", 1024, mtime)
		b := hash.Staging("/memos/a.m4a", 1024, mtime)
		if a != b {
			t.Errorf("Staging() not deterministic: %s != %s", a, b)
		}
	})

	t.Run("depends on path", func(t *testing.T) {
		a := hash.Staging("/memos/a.m4a", 1024, mtime)
		b := hash.Staging("/memos/b.m4a", 1024, mtime)
		if a == b {
			t.Error("Staging() identical for different paths")
		}
	})

	t.Run("depends on mtime", func(t *testing.T) {
		a := hash.Staging("/memos/a.m4a", 1024, mtime)
		b := hash.Staging("/memos/a.m4a", 1024, mtime.Add(time.Second))
		if a == b {
			t.Error("Staging() identical for different mtimes")
		}
	})

	t.Run("is not a content fingerprint", func(t *testing.T) {
		got := hash.Staging("/memos/a.m4a", 1024, mtime)
		if got[:8] != "staging-" {
			t.Errorf("Staging() = %s, want staging- prefix", got)
		}
	})
}
