package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"inkwell/internal/model"
)

// ErrorKind is the closed classification of transcription failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindOOM
	KindCorruptAudio
	KindFileNotFound
	KindFileUnreadable
	KindModelLoadFailure
	KindWhisperError
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "unknown",
	KindTimeout:          "timeout",
	KindOOM:              "oom",
	KindCorruptAudio:     "corrupt_audio",
	KindFileNotFound:     "file_not_found",
	KindFileUnreadable:   "file_unreadable",
	KindModelLoadFailure: "model_load_failure",
	KindWhisperError:     "whisper_error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Permanent reports whether no amount of retry can help. Permanent
// failures escalate to a placeholder export; everything else is treated
// as transient at the classification layer (actual retry eligibility is
// the worker's timeout-only policy).
func (k ErrorKind) Permanent() bool {
	return k == KindOOM || k == KindCorruptAudio
}

// Retriable reports whether the worker's retry policy applies.
// Only timeouts are retried, and only once.
func (k ErrorKind) Retriable() bool {
	return k == KindTimeout
}

// Classify maps a transcription error to its kind. Transcriber
// implementations attach kinds via TranscriptionError; context and
// filesystem errors are recognized directly.
func Classify(err error) ErrorKind {
	var terr *TranscriptionError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, fs.ErrNotExist) {
		return KindFileNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return KindFileUnreadable
	}
	return KindUnknown
}

// FailureHandler records transcription failures and decides escalation.
// Classification and recording always happen before any escalation
// action; a failed placeholder export never loses the error record.
type FailureHandler struct {
	ledger   Ledger
	exporter *Exporter
	logger   Logger
	clock    Clock
	metrics  Metrics
}

// NewFailureHandler creates a FailureHandler with the provided dependencies.
func NewFailureHandler(ledger Ledger, exporter *Exporter, logger Logger, clock Clock, metrics Metrics) *FailureHandler {
	return &FailureHandler{
		ledger:   ledger,
		exporter: exporter,
		logger:   logger,
		clock:    clock,
		metrics:  metrics,
	}
}

// failureContext is the provenance serialized into the error row and
// rendered into placeholder bodies.
type failureContext struct {
	AudioPath string `json:"audio_path,omitempty"`
	Attempts  int    `json:"attempts"`
	FailedAt  string `json:"failed_at"`
}

// Handle records the failure and performs escalation. The capture moves
// to failed_transcription in all cases; permanent failures additionally
// get a placeholder export and end at exported_placeholder.
func (h *FailureHandler) Handle(captureID string, audioPath string, kind ErrorKind, cause error, attempts int) error {
	h.metrics.Count(MetricTranscriptionFailureTotal, "error_type="+kind.String())

	now := h.clock.Now()
	fctx, _ := json.Marshal(failureContext{
		AudioPath: audioPath,
		Attempts:  attempts,
		FailedAt:  now.UTC().Format(time.RFC3339),
	})

	row := &model.ErrorLog{
		CaptureID:    captureID,
		Operation:    "transcribe",
		ErrorType:    kind.String(),
		Message:      cause.Error(),
		ContextJSON:  string(fctx),
		AttemptCount: attempts,
		CreatedAt:    now,
	}

	if kind.Permanent() {
		action := model.EscalationExportPlaceholder
		row.EscalationAction = &action
		row.DLQ = true
	}

	// The error record must be durable before any escalation action.
	if err := h.ledger.RecordError(row); err != nil {
		return fmt.Errorf("recording error for capture %s: %w", captureID, err)
	}

	if err := h.ledger.UpdateStatus(captureID, model.StatusStaged, model.StatusFailedTranscription); err != nil {
		return fmt.Errorf("marking capture %s failed: %w", captureID, err)
	}

	h.logger.Warn("transcription failed",
		"capture_id", captureID,
		"error_type", kind.String(),
		"attempts", attempts,
		"permanent", kind.Permanent())

	if !kind.Permanent() {
		// Transient failures exhausted by the retry policy stay at
		// failed_transcription; follow-up is operator-driven.
		return nil
	}

	body := renderPlaceholder(captureID, audioPath, kind.String(), cause.Error(), attempts, now)
	if err := h.exporter.ExportPlaceholder(captureID, body); err != nil {
		// The error row above persists regardless.
		return fmt.Errorf("exporting placeholder for capture %s: %w", captureID, err)
	}

	return nil
}

// renderPlaceholder formats the original failure context as
// human-readable prose. Placeholders are textually marked as permanent
// so downstream consumers don't mistake them for successful captures.
// The rendering is deterministic over the recorded error row, so a
// placeholder resumed after a crash produces the same bytes the
// original attempt would have written.
func renderPlaceholder(captureID, audioPath, kind, detail string, attempts int, failedAt time.Time) string {
	return fmt.Sprintf(`# Transcription failed permanently

This capture could not be transcribed and will not be retried.

- Capture: %s
- Audio file: %s
- Failure: %s
- Detail: %s
- Attempts: %d
- Failed at: %s

The original audio file was left in place. This placeholder stands in
for the capture so that nothing is silently dropped.
`, captureID, audioPath, kind, detail, attempts, failedAt.UTC().Format(time.RFC3339))
}
