package archive

import (
	"context"
	"fmt"
	"sync"
)

// MemoryArchiver is an in-memory implementation of the Archiver interface for testing.
type MemoryArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

// NewMemoryArchiver creates a new in-memory archiver.
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{objects: make(map[string][]byte)}
}

// FailWith makes every subsequent Store call return err.
func (a *MemoryArchiver) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failErr = err
}

func (a *MemoryArchiver) Store(_ context.Context, vaultPath string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return fmt.Errorf("storing %s: %w", vaultPath, a.failErr)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	a.objects[vaultPath] = stored
	return nil
}

// Objects returns a snapshot of the stored objects, for test assertions.
func (a *MemoryArchiver) Objects() map[string][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]byte, len(a.objects))
	for k, v := range a.objects {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

var _ Archiver = (*MemoryArchiver)(nil)
