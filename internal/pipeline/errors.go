package pipeline

import "errors"

// Sentinel errors for the pipeline's contract points. Callers branch on
// these with errors.Is; everything else is wrapped context.
var (
	// ErrNotFound indicates a ledger row that should exist does not.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates a structural collision in the ledger, such
	// as re-discovering an artifact that is already tracked. Never
	// retried, never silently overwritten.
	ErrIntegrity = errors.New("ledger integrity violation")

	// ErrInvalidTransition indicates a status change the transition
	// table does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrHashImmutable indicates an attempt to change a content hash
	// that has already been set.
	ErrHashImmutable = errors.New("content hash already set")

	// ErrDuplicateContent indicates the content hash being committed is
	// already held by another capture. This is the dedup enforcement
	// point, backed by the unique index on content_hash.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrQueueFull is returned by Enqueue when the transcription queue
	// has reached its ceiling. Callers must throttle upstream rather
	// than block.
	ErrQueueFull = errors.New("transcription queue full")

	// ErrExportConflict indicates the export path already holds
	// different content. The existing file is never overwritten and the
	// ledger is left untouched; resolution is operator-driven.
	ErrExportConflict = errors.New("export path holds different content")
)
