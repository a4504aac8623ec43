// Package archive provides an optional off-site mirror of exported
// notes. Mirroring is strictly best-effort: the vault is the system of
// record, and an archive failure never blocks or rolls back an export.
package archive

import "context"

// Archiver mirrors exported notes to secondary storage.
type Archiver interface {
	// Store uploads the content of one exported note under its vault path.
	Store(ctx context.Context, vaultPath string, data []byte) error
}
