package pipeline

import (
	"errors"
	"fmt"

	"inkwell/internal/hash"
	"inkwell/internal/model"
)

// ExportResult describes the outcome of an export request.
type ExportResult struct {
	Path    string
	Mode    model.AuditMode
	Skipped bool
}

// Exporter writes finalized capture content into the vault with a
// two-phase contract: collision resolution first, then a temp-write,
// fsync, atomic-rename commit. Ledger state is only mutated after the
// file is durably in place, and never on conflict or write failure, so
// a failed export is always safely retriable.
type Exporter struct {
	ledger  Ledger
	vault   Vault
	logger  Logger
	clock   Clock
	metrics Metrics
}

// NewExporter creates an Exporter with the provided dependencies.
func NewExporter(ledger Ledger, vault Vault, logger Logger, clock Clock, metrics Metrics) *Exporter {
	return &Exporter{
		ledger:  ledger,
		vault:   vault,
		logger:  logger,
		clock:   clock,
		metrics: metrics,
	}
}

// Export writes content for a capture to inbox/<id>.md in the vault.
//
// Outcomes:
//   - no collision: file written atomically, audit mode=initial, status
//     becomes exported.
//   - duplicate (same hash already exported, or the target file already
//     holds this exact content): no write, audit mode=duplicate_skip,
//     status becomes exported_duplicate where the transition table
//     allows it. Returned with Skipped=true; this is a success.
//   - conflict (target file holds different content): ErrExportConflict,
//     existing file untouched, no ledger mutation.
//
// If a previous attempt crashed between the audit insert and the status
// update, Export finishes the status transition without rewriting.
func (e *Exporter) Export(captureID string, content []byte) (*ExportResult, error) {
	capture, err := e.ledger.GetCapture(captureID)
	if err != nil {
		return nil, fmt.Errorf("loading capture %s: %w", captureID, err)
	}

	fp := hash.Content(content)
	name := InboxPath(captureID)

	// Finish a half-committed export before anything else.
	audit, err := e.ledger.FindExclusiveAudit(captureID)
	if err != nil {
		return nil, fmt.Errorf("checking prior export of capture %s: %w", captureID, err)
	}
	if audit != nil && !capture.Status.Terminal() {
		return e.finishInterrupted(capture, audit)
	}

	// Ledger-level dedup: identical content already exported under
	// another capture.
	dup, err := e.ledger.CheckDuplicate(fp)
	if err != nil {
		return nil, fmt.Errorf("checking duplicate for capture %s: %w", captureID, err)
	}
	if dup != nil && dup.CaptureID != captureID {
		return e.skipDuplicate(capture, fp, dup.ExportPath)
	}

	// Content identity binds late: voice captures get their hash at
	// transcript commit, email captures here, when their content is
	// first exported. A bind collision means another capture already
	// owns this content but has not exported yet.
	if capture.ContentHash == nil {
		if err := e.ledger.BindContentHash(captureID, fp); err != nil {
			if errors.Is(err, ErrDuplicateContent) {
				return e.skipDuplicateOf(capture, fp, string(content))
			}
			return nil, fmt.Errorf("binding content hash for capture %s: %w", captureID, err)
		}
	}

	// Path-level collision resolution.
	exists, err := e.vault.Exists(name)
	if err != nil {
		return nil, fmt.Errorf("checking export path %s: %w", name, err)
	}
	if exists {
		existing, err := e.vault.Read(name)
		if err != nil {
			return nil, fmt.Errorf("reading existing export %s: %w", name, err)
		}
		if hash.Content(existing) == fp {
			return e.skipDuplicate(capture, fp, name)
		}
		return nil, fmt.Errorf("export %s: %w", name, ErrExportConflict)
	}

	start := e.clock.Now()
	if err := e.vault.WriteAtomic(name, content); err != nil {
		return nil, fmt.Errorf("writing export %s: %w", name, err)
	}
	e.metrics.ObserveMs(MetricExportWriteMs, float64(e.clock.Now().Sub(start).Milliseconds()),
		"source="+string(capture.Source), "mode="+string(model.AuditInitial))

	hashStr := fp.String()
	if err := e.ledger.RecordAudit(&model.ExportAudit{
		CaptureID:    captureID,
		VaultPath:    name,
		HashAtExport: &hashStr,
		Mode:         model.AuditInitial,
		ExportedAt:   e.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("recording export audit for capture %s: %w", captureID, err)
	}

	if err := e.ledger.UpdateStatus(captureID, capture.Status, model.StatusExported); err != nil {
		return nil, fmt.Errorf("marking capture %s exported: %w", captureID, err)
	}

	e.logger.Info("capture exported", "capture_id", captureID, "path", name)
	return &ExportResult{Path: name, Mode: model.AuditInitial}, nil
}

// ExportPlaceholder writes a permanent placeholder body for a capture
// whose transcription failed permanently. The capture must be in
// failed_transcription; it ends at exported_placeholder and is never
// retranscribed.
func (e *Exporter) ExportPlaceholder(captureID string, body string) error {
	capture, err := e.ledger.GetCapture(captureID)
	if err != nil {
		return fmt.Errorf("loading capture %s: %w", captureID, err)
	}

	name := InboxPath(captureID)

	audit, err := e.ledger.FindExclusiveAudit(captureID)
	if err != nil {
		return fmt.Errorf("checking prior export of capture %s: %w", captureID, err)
	}
	if audit != nil {
		if capture.Status.Terminal() {
			return nil
		}
		_, err := e.finishInterrupted(capture, audit)
		return err
	}

	content := []byte(body)
	exists, err := e.vault.Exists(name)
	if err != nil {
		return fmt.Errorf("checking export path %s: %w", name, err)
	}
	if exists {
		existing, err := e.vault.Read(name)
		if err != nil {
			return fmt.Errorf("reading existing export %s: %w", name, err)
		}
		if hash.Content(existing) != hash.Content(content) {
			return fmt.Errorf("placeholder export %s: %w", name, ErrExportConflict)
		}
		// Crash after rename, before the audit row: file is already in
		// place, fall through to record the commit.
	} else {
		start := e.clock.Now()
		if err := e.vault.WriteAtomic(name, content); err != nil {
			return fmt.Errorf("writing placeholder %s: %w", name, err)
		}
		e.metrics.ObserveMs(MetricExportWriteMs, float64(e.clock.Now().Sub(start).Milliseconds()),
			"source="+string(capture.Source), "mode="+string(model.AuditPlaceholder))
	}

	if err := e.ledger.RecordAudit(&model.ExportAudit{
		CaptureID:  captureID,
		VaultPath:  name,
		Mode:       model.AuditPlaceholder,
		ErrorFlag:  true,
		ExportedAt: e.clock.Now(),
	}); err != nil {
		return fmt.Errorf("recording placeholder audit for capture %s: %w", captureID, err)
	}

	if err := e.ledger.UpdateStatus(captureID, model.StatusFailedTranscription, model.StatusExportedPlaceholder); err != nil {
		return fmt.Errorf("marking capture %s placeholder-exported: %w", captureID, err)
	}

	e.logger.Info("placeholder exported", "capture_id", captureID, "path", name)
	return nil
}

// skipDuplicate records a duplicate_skip audit and, where the
// transition table allows, moves the capture to exported_duplicate.
// The file on disk is left untouched.
func (e *Exporter) skipDuplicate(capture *model.Capture, fp hash.Fingerprint, originalPath string) (*ExportResult, error) {
	hashStr := fp.String()
	if err := e.ledger.RecordAudit(&model.ExportAudit{
		CaptureID:    capture.ID,
		VaultPath:    originalPath,
		HashAtExport: &hashStr,
		Mode:         model.AuditDuplicateSkip,
		ExportedAt:   e.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("recording duplicate audit for capture %s: %w", capture.ID, err)
	}

	if model.CanTransition(capture.Status, model.StatusExportedDuplicate) {
		if err := e.ledger.UpdateStatus(capture.ID, capture.Status, model.StatusExportedDuplicate); err != nil {
			return nil, fmt.Errorf("marking capture %s duplicate: %w", capture.ID, err)
		}
	}

	e.logger.Info("duplicate export skipped", "capture_id", capture.ID, "original_path", originalPath)
	return &ExportResult{Path: originalPath, Mode: model.AuditDuplicateSkip, Skipped: true}, nil
}

// skipDuplicateOf resolves the capture owning fp and records this one
// as its duplicate: the content and original are noted in meta_json, a
// duplicate_skip audit points at the original's file, nothing is
// written to the vault.
func (e *Exporter) skipDuplicateOf(capture *model.Capture, fp hash.Fingerprint, text string) (*ExportResult, error) {
	original, err := e.ledger.FindByContentHash(fp)
	if err != nil {
		return nil, fmt.Errorf("resolving duplicate owner for capture %s: %w", capture.ID, err)
	}

	if err := e.ledger.MarkDuplicate(capture.ID, text, fp, original.ID); err != nil {
		return nil, fmt.Errorf("marking capture %s duplicate: %w", capture.ID, err)
	}

	path := InboxPath(original.ID)
	if audit, err := e.ledger.FindExclusiveAudit(original.ID); err == nil && audit != nil {
		path = audit.VaultPath
	}

	hashStr := fp.String()
	if err := e.ledger.RecordAudit(&model.ExportAudit{
		CaptureID:    capture.ID,
		VaultPath:    path,
		HashAtExport: &hashStr,
		Mode:         model.AuditDuplicateSkip,
		ExportedAt:   e.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("recording duplicate audit for capture %s: %w", capture.ID, err)
	}

	e.logger.Info("duplicate export skipped", "capture_id", capture.ID, "original_id", original.ID)
	return &ExportResult{Path: path, Mode: model.AuditDuplicateSkip, Skipped: true}, nil
}

// finishInterrupted completes the status transition of an export whose
// audit row committed but whose status update did not.
func (e *Exporter) finishInterrupted(capture *model.Capture, audit *model.ExportAudit) (*ExportResult, error) {
	target := model.StatusExported
	if audit.Mode == model.AuditPlaceholder {
		target = model.StatusExportedPlaceholder
	}

	if err := e.ledger.UpdateStatus(capture.ID, capture.Status, target); err != nil {
		return nil, fmt.Errorf("finishing interrupted export of capture %s: %w", capture.ID, err)
	}

	e.logger.Warn("finished interrupted export", "capture_id", capture.ID, "mode", string(audit.Mode))
	return &ExportResult{Path: audit.VaultPath, Mode: audit.Mode}, nil
}
