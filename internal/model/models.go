package model

import (
	"fmt"
	"time"
)

// Source identifies the channel a capture arrived through.
type Source string

const (
	SourceVoice Source = "voice"
	SourceEmail Source = "email"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceVoice || s == SourceEmail
}

// Status is the lifecycle state of a capture in the ledger.
type Status string

const (
	StatusDiscovered          Status = "discovered"
	StatusStaged              Status = "staged"
	StatusTranscribed         Status = "transcribed"
	StatusFailedTranscription Status = "failed_transcription"
	StatusExported            Status = "exported"
	StatusExportedDuplicate   Status = "exported_duplicate"
	StatusExportedPlaceholder Status = "exported_placeholder"
)

// transitions is the allowed status transition table. The ledger is the
// sole mutator of status; every transition it performs must appear here.
var transitions = map[Status][]Status{
	StatusDiscovered:          {StatusStaged},
	StatusStaged:              {StatusTranscribed, StatusFailedTranscription, StatusExported, StatusExportedDuplicate},
	StatusTranscribed:         {StatusExported, StatusExportedDuplicate},
	StatusFailedTranscription: {StatusExportedPlaceholder},
	StatusExported:            {},
	StatusExportedDuplicate:   {},
	StatusExportedPlaceholder: {},
}

// CanTransition reports whether a capture may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string from user input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown status: %s", s)
	}
	return st, nil
}

// Terminal reports whether a status is an end state.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Capture is one unit of user-originated content tracked through the pipeline.
type Capture struct {
	ID              string  // ULID, assigned at discovery
	Source          Source
	ChannelNativeID string  // identity of the physical artifact at the source
	RawContent      *string // nil until content is final (voice: until transcribed)
	ContentHash     *string // set at most once, immutable after
	Status          Status
	MetaJSON        string // free-form provenance (file path, attempts, staging fingerprint)
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuditMode distinguishes the kinds of export outcomes recorded in the audit log.
type AuditMode string

const (
	AuditInitial       AuditMode = "initial"
	AuditDuplicateSkip AuditMode = "duplicate_skip"
	AuditPlaceholder   AuditMode = "placeholder"
)

// Exclusive reports whether this mode counts against the
// at-most-one-export-per-capture invariant.
func (m AuditMode) Exclusive() bool {
	return m == AuditInitial || m == AuditPlaceholder
}

// ExportAudit is an append-only record of one export attempt outcome.
type ExportAudit struct {
	ID           int64
	CaptureID    string
	VaultPath    string
	HashAtExport *string // nil for placeholders
	Mode         AuditMode
	ErrorFlag    bool
	ExportedAt   time.Time
}

// ErrorLog is an append-only record of an operational failure.
type ErrorLog struct {
	ID               int64
	CaptureID        string
	Operation        string
	ErrorType        string
	Message          string
	Stack            string
	ContextJSON      string
	AttemptCount     int
	EscalationAction *string
	DLQ              bool
	CreatedAt        time.Time
}

// EscalationExportPlaceholder marks an error row whose escalation was a
// placeholder export.
const EscalationExportPlaceholder = "export_placeholder"

// SyncState is named cursor bookkeeping for source pollers and the
// archive mirror. The core only persists it; owners decide its meaning.
type SyncState struct {
	Name      string
	Cursor    string
	UpdatedAt time.Time
}
