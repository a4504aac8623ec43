// Package hash provides the content fingerprint used for dedup keys.
// It is decoupled from the ledger so the algorithm can evolve without
// touching storage code.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint is a deterministic identity for finalized capture content.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Content computes the fingerprint of finalized content.
// It must never be applied to raw audio bytes: audio has no stable
// content identity until transcription succeeds.
func Content(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Staging computes a non-identity fingerprint for an unprocessed source
// file, used only to detect re-polling of the same artifact. It is
// stored in a capture's meta_json and is distinct from the content
// fingerprint: two files with identical bytes at different paths get
// different staging fingerprints, and that is fine.
func Staging(path string, size int64, mtime time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", path, size, mtime.UnixNano()))
	return "staging-" + hex.EncodeToString(sum[:8])
}
