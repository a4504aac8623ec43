package pipeline

import (
	"inkwell/internal/hash"
	"inkwell/internal/model"
)

// DuplicateInfo describes an already-exported capture holding the same
// content hash as the one being checked.
type DuplicateInfo struct {
	CaptureID  string
	ExportPath string
}

// Ledger is the durable, authoritative record of capture state. It is
// the sole mutator of status and content_hash; the worker and exporter
// only request transitions through it. Every mutation is a single
// atomic statement, so a crash between "compute result" and "persist
// result" never leaves content and status inconsistent.
type Ledger interface {
	// InsertCapture records a newly discovered capture. A unique
	// violation on (source, channel_native_id) or content_hash surfaces
	// as ErrIntegrity.
	InsertCapture(c *model.Capture) error

	// GetCapture returns a capture by ID, or ErrNotFound.
	GetCapture(id string) (*model.Capture, error)

	// ListCapturesByStatus returns captures in the given status, oldest first.
	ListCapturesByStatus(status model.Status) ([]*model.Capture, error)

	// ListExportEligible returns captures whose content is final and
	// which have not yet been exported: transcribed captures, plus
	// staged captures from sources that need no transcription.
	ListExportEligible() ([]*model.Capture, error)

	// UpdateStatus transitions a capture from one status to another.
	// Returns ErrInvalidTransition if the capture is not currently in
	// the from status or the transition table forbids the move.
	UpdateStatus(id string, from, to model.Status) error

	// CommitTranscript atomically sets raw_content, content_hash, and
	// status=transcribed in one write. Returns ErrHashImmutable if the
	// capture already has a hash, ErrDuplicateContent if another
	// capture holds the same hash.
	CommitTranscript(id string, text string, fp hash.Fingerprint) error

	// BindContentHash sets the content hash for a capture whose content
	// was final at discovery and so never passes through CommitTranscript
	// (email captures bind at export). Setting the same hash again is a
	// no-op; a different hash returns ErrHashImmutable; a hash owned by
	// another capture returns ErrDuplicateContent.
	BindContentHash(id string, fp hash.Fingerprint) error

	// MarkDuplicate atomically records a transcript whose content is
	// already owned by another capture: raw_content is kept, the hash
	// and original are noted in meta_json (content_hash stays null),
	// and status moves to exported_duplicate.
	MarkDuplicate(id string, text string, fp hash.Fingerprint, originalID string) error

	// CheckDuplicate looks for an exported capture with the same
	// content hash. Returns nil when no duplicate exists.
	CheckDuplicate(fp hash.Fingerprint) (*DuplicateInfo, error)

	// FindByContentHash returns the capture holding the given content
	// hash regardless of status, or ErrNotFound.
	FindByContentHash(fp hash.Fingerprint) (*model.Capture, error)

	// RecordAudit appends an export audit row. Inserting a second
	// exclusive-mode row for the same capture surfaces as ErrIntegrity.
	RecordAudit(a *model.ExportAudit) error

	// FindExclusiveAudit returns the initial or placeholder audit row
	// for a capture, or nil if none exists.
	FindExclusiveAudit(captureID string) (*model.ExportAudit, error)

	// ListAuditsSince returns audit rows with ID greater than afterID,
	// oldest first. Used by the archive mirror to resume where it left off.
	ListAuditsSince(afterID int64) ([]*model.ExportAudit, error)

	// RecordError appends an error log row.
	RecordError(e *model.ErrorLog) error

	// ErrorsForCapture returns error log rows for a capture, oldest first.
	ErrorsForCapture(captureID string) ([]*model.ErrorLog, error)

	// CountByStatus returns the number of captures in each status.
	CountByStatus() (map[model.Status]int, error)

	// GetSyncState returns the named cursor ("" if unset). Cursors are
	// owned by pollers and the archive mirror; the ledger only stores them.
	GetSyncState(name string) (string, error)

	// SetSyncState upserts a named cursor.
	SetSyncState(name string, cursor string) error

	// Close closes the underlying store.
	Close() error
}
