package archive

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryArchiver(t *testing.T) {
	a := NewMemoryArchiver()

	if err := a.Store(context.Background(), "inbox/a.md", []byte("alpha")); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	objects := a.Objects()
	if string(objects["inbox/a.md"]) != "alpha" {
		t.Errorf("stored object = %q, want alpha", objects["inbox/a.md"])
	}

	boom := errors.New("network down")
	a.FailWith(boom)
	err := a.Store(context.Background(), "inbox/b.md", []byte("beta"))
	if !errors.Is(err, boom) {
		t.Errorf("Store() error = %v, want wrapped failure", err)
	}
	if _, ok := a.Objects()["inbox/b.md"]; ok {
		t.Error("failed Store() must not record the object")
	}
}
