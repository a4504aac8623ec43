package pipeline

// Vault is the external destination tree captures are exported into.
// Paths are relative to the vault root. The backing store must support
// atomic rename from its staging area to a final path.
type Vault interface {
	// EnsureLayout creates the inbox and staging subdirectories.
	EnsureLayout() error

	// Exists reports whether a file is present at the given path.
	Exists(name string) (bool, error)

	// Read returns the full content of the file at the given path.
	Read(name string) ([]byte, error)

	// WriteAtomic writes content to a temp file in the staging
	// subdirectory, syncs it to stable storage, then atomically renames
	// it to name. On failure the temp file is removed and the final
	// path is left untouched.
	WriteAtomic(name string, data []byte) error

	// SweepStaging removes orphaned temp files left behind by an
	// interrupted write. Returns the number of files removed.
	SweepStaging() (int, error)
}

// InboxPath returns the export path for a capture inside the vault.
func InboxPath(captureID string) string {
	return "inbox/" + captureID + ".md"
}
