package vault

import (
	"fmt"
	"sync"

	"inkwell/internal/pipeline"
)

// MemoryVault is an in-memory implementation of the Vault interface for testing.
type MemoryVault struct {
	mu      sync.Mutex
	files   map[string][]byte
	staging map[string][]byte
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		files:   make(map[string][]byte),
		staging: make(map[string][]byte),
	}
}

func (v *MemoryVault) EnsureLayout() error {
	return nil
}

func (v *MemoryVault) Exists(name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.files[name]
	return ok, nil
}

func (v *MemoryVault) Read(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.files[name]
	if !ok {
		return nil, fmt.Errorf("vault path not found: %s", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (v *MemoryVault) WriteAtomic(name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	v.files[name] = stored
	return nil
}

func (v *MemoryVault) SweepStaging() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := len(v.staging)
	v.staging = make(map[string][]byte)
	return n, nil
}

// AddOrphan plants a fake interrupted-write artifact in the staging
// area, for recovery tests.
func (v *MemoryVault) AddOrphan(name string, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staging[name] = data
}

// Files returns a snapshot of the vault contents, for test assertions.
func (v *MemoryVault) Files() map[string][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string][]byte, len(v.files))
	for name, data := range v.files {
		cp := make([]byte, len(data))
		copy(cp, data)
		out[name] = cp
	}
	return out
}

// Compile-time check that MemoryVault implements pipeline.Vault
var _ pipeline.Vault = (*MemoryVault)(nil)
