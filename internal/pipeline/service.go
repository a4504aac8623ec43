package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inkwell/internal/hash"
	"inkwell/internal/model"
)

// Service is the orchestration layer that coordinates the ledger,
// worker, and exporter to move captures from discovery to export.
// Processing is deliberately sequential, one unit of work at a time,
// so crash-recovery reasoning stays tractable.
type Service struct {
	ledger   Ledger
	vault    Vault
	worker   *Worker
	exporter *Exporter
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(ledger Ledger, vault Vault, worker *Worker, exporter *Exporter, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		ledger:   ledger,
		vault:    vault,
		worker:   worker,
		exporter: exporter,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// voiceMeta is the provenance stored for a voice capture at discovery.
type voiceMeta struct {
	AudioPath          string `json:"audio_path"`
	StagingFingerprint string `json:"staging_fingerprint"`
}

// DiscoverVoice registers a voice memo for transcription and export.
// The staging fingerprint (from path, size, mtime) only detects
// re-polling of the same unprocessed file; it is never the content
// identity. The capture is durably staged before it is enqueued.
func (s *Service) DiscoverVoice(channelNativeID, audioPath string, size int64, mtime time.Time) (*model.Capture, error) {
	meta, _ := json.Marshal(voiceMeta{
		AudioPath:          audioPath,
		StagingFingerprint: hash.Staging(audioPath, size, mtime),
	})

	capture, err := s.insertStaged(model.SourceVoice, channelNativeID, nil, string(meta))
	if err != nil {
		return nil, err
	}

	if err := s.worker.Enqueue(capture.ID, audioPath); err != nil {
		// The capture stays staged; Recover re-enqueues it later.
		return capture, fmt.Errorf("enqueueing capture %s: %w", capture.ID, err)
	}

	return capture, nil
}

// DiscoverEmail registers a forwarded email. Its content is final at
// discovery, so it stages directly and needs no transcription.
func (s *Service) DiscoverEmail(channelNativeID, content string) (*model.Capture, error) {
	return s.insertStaged(model.SourceEmail, channelNativeID, &content, "{}")
}

// insertStaged records a capture as discovered and immediately
// transitions it to staged once the insert is durable.
func (s *Service) insertStaged(source model.Source, nativeID string, content *string, metaJSON string) (*model.Capture, error) {
	now := s.clock.Now()
	capture := &model.Capture{
		ID:              s.idgen.New(),
		Source:          source,
		ChannelNativeID: nativeID,
		RawContent:      content,
		Status:          model.StatusDiscovered,
		MetaJSON:        metaJSON,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.ledger.InsertCapture(capture); err != nil {
		return nil, fmt.Errorf("inserting capture: %w", err)
	}

	if err := s.ledger.UpdateStatus(capture.ID, model.StatusDiscovered, model.StatusStaged); err != nil {
		return nil, fmt.Errorf("staging capture %s: %w", capture.ID, err)
	}
	capture.Status = model.StatusStaged

	s.logger.Info("capture staged", "capture_id", capture.ID, "source", string(source))
	return capture, nil
}

// ProcessQueue drains the transcription worker. Returns the number of
// jobs that finished.
func (s *Service) ProcessQueue(ctx context.Context) (int, error) {
	return s.worker.Drain(ctx)
}

// ExportEligible exports every capture whose content is final:
// transcribed voice captures and staged email captures. Conflicts are
// logged and skipped so one stuck capture doesn't block the rest; the
// first non-conflict error aborts.
// Returns the number of captures that reached a terminal export state.
func (s *Service) ExportEligible() (int, error) {
	captures, err := s.ledger.ListExportEligible()
	if err != nil {
		return 0, fmt.Errorf("listing export-eligible captures: %w", err)
	}

	exported := 0
	for _, c := range captures {
		if c.RawContent == nil {
			return exported, fmt.Errorf("capture %s is export-eligible but has no content: %w", c.ID, ErrIntegrity)
		}
		_, err := s.exporter.Export(c.ID, []byte(*c.RawContent))
		if err != nil {
			if errors.Is(err, ErrExportConflict) {
				s.logger.Error("export conflict, skipping capture", "capture_id", c.ID, "error", err)
				continue
			}
			return exported, err
		}
		exported++
	}

	return exported, nil
}

// Recover restores invariants after a crash. It is idempotent and runs
// at startup, before any new work:
//   - orphaned temp files in the vault staging area are deleted,
//   - exports that committed their audit row but not their status
//     transition are finished,
//   - staged voice captures are re-enqueued (the queue is in-memory
//     and does not survive a restart).
func (s *Service) Recover() error {
	removed, err := s.vault.SweepStaging()
	if err != nil {
		return fmt.Errorf("sweeping vault staging area: %w", err)
	}
	if removed > 0 {
		s.logger.Warn("removed orphaned temp files", "count", removed)
	}

	for _, status := range []model.Status{model.StatusStaged, model.StatusTranscribed, model.StatusFailedTranscription} {
		captures, err := s.ledger.ListCapturesByStatus(status)
		if err != nil {
			return fmt.Errorf("listing %s captures: %w", status, err)
		}
		for _, c := range captures {
			if err := s.recoverCapture(c); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Service) recoverCapture(c *model.Capture) error {
	// Finish a half-committed export first; if none, staged voice goes
	// back on the queue.
	audit, err := s.ledger.FindExclusiveAudit(c.ID)
	if err != nil {
		return fmt.Errorf("checking prior export of capture %s: %w", c.ID, err)
	}
	if audit != nil {
		if _, err := s.exporter.finishInterrupted(c, audit); err != nil {
			return err
		}
		return nil
	}

	if c.Status == model.StatusFailedTranscription {
		return s.resumePlaceholder(c)
	}

	if c.Status == model.StatusStaged && c.Source == model.SourceVoice {
		var meta voiceMeta
		if err := json.Unmarshal([]byte(c.MetaJSON), &meta); err != nil {
			return fmt.Errorf("reading meta for capture %s: %w", c.ID, err)
		}
		if err := s.worker.Enqueue(c.ID, meta.AudioPath); err != nil {
			return fmt.Errorf("re-enqueueing capture %s: %w", c.ID, err)
		}
		s.logger.Debug("re-enqueued staged capture", "capture_id", c.ID)
	}

	return nil
}

// resumePlaceholder finishes a placeholder export that an error row
// promised but a crash interrupted. Permanently failed captures always
// get their placeholder; transient terminal failures (no escalation on
// the error row) stay put for operator follow-up.
func (s *Service) resumePlaceholder(c *model.Capture) error {
	rows, err := s.ledger.ErrorsForCapture(c.ID)
	if err != nil {
		return fmt.Errorf("reading errors for capture %s: %w", c.ID, err)
	}

	var promised *model.ErrorLog
	for _, row := range rows {
		if row.EscalationAction != nil && *row.EscalationAction == model.EscalationExportPlaceholder {
			promised = row
		}
	}
	if promised == nil {
		return nil
	}

	var fctx failureContext
	if err := json.Unmarshal([]byte(promised.ContextJSON), &fctx); err != nil {
		return fmt.Errorf("reading error context for capture %s: %w", c.ID, err)
	}

	body := renderPlaceholder(c.ID, fctx.AudioPath, promised.ErrorType, promised.Message,
		promised.AttemptCount, promised.CreatedAt)
	if err := s.exporter.ExportPlaceholder(c.ID, body); err != nil {
		return fmt.Errorf("resuming placeholder for capture %s: %w", c.ID, err)
	}

	s.logger.Warn("resumed interrupted placeholder export", "capture_id", c.ID)
	return nil
}

// StatusSnapshot is the observable state of the pipeline.
type StatusSnapshot struct {
	Worker   WorkerStats
	ByStatus map[model.Status]int
}

// GetStatus returns worker counters and capture counts by status.
func (s *Service) GetStatus() (*StatusSnapshot, error) {
	counts, err := s.ledger.CountByStatus()
	if err != nil {
		return nil, fmt.Errorf("counting captures: %w", err)
	}
	return &StatusSnapshot{
		Worker:   s.worker.Stats(),
		ByStatus: counts,
	}, nil
}

// Capture returns a single capture by ID.
func (s *Service) Capture(id string) (*model.Capture, error) {
	return s.ledger.GetCapture(id)
}

// CapturesByStatus lists captures in a given status, oldest first.
func (s *Service) CapturesByStatus(status model.Status) ([]*model.Capture, error) {
	return s.ledger.ListCapturesByStatus(status)
}

// Errors returns the error log rows for a capture, oldest first.
func (s *Service) Errors(captureID string) ([]*model.ErrorLog, error) {
	return s.ledger.ErrorsForCapture(captureID)
}
