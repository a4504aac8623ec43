package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inkwell/internal/hash"
	"inkwell/internal/model"
)

// Worker defaults. The ceiling counts queued plus in-flight jobs.
const (
	DefaultQueueCeiling   = 256
	DefaultAttemptTimeout = 30 * time.Second

	// maxAttempts bounds a job to its first attempt plus exactly one
	// retry. The attempt counter is carried on the job, not inferred
	// from call counts.
	maxAttempts = 2
)

// job is one unit of transcription work. Its lifecycle is
// queued -> processing -> {completed, retry -> queued, failed}.
type job struct {
	CaptureID string
	AudioPath string
	Attempts  int
}

// WorkerStats is a point-in-time snapshot of worker state.
type WorkerStats struct {
	QueueDepth int
	InFlight   bool
	Processed  int
	Failed     int
	Retried    int
}

// Worker drains captures that need transcription, one at a time.
// Enqueue is safe to call from multiple goroutines, but only one job is
// ever processing; queue state is owned by this struct and passed by
// handle to callers.
type Worker struct {
	ledger      Ledger
	transcriber Transcriber
	failures    *FailureHandler
	logger      Logger
	clock       Clock
	metrics     Metrics

	ceiling int
	timeout time.Duration

	mu         sync.Mutex
	queue      []*job
	inFlightID string // capture currently processing, "" when idle
	processed  int
	failed     int
	retried    int
}

// NewWorker creates a transcription worker. A ceiling or timeout of
// zero selects the default.
func NewWorker(ledger Ledger, transcriber Transcriber, failures *FailureHandler, logger Logger, clock Clock, metrics Metrics, ceiling int, timeout time.Duration) *Worker {
	if ceiling <= 0 {
		ceiling = DefaultQueueCeiling
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Worker{
		ledger:      ledger,
		transcriber: transcriber,
		failures:    failures,
		logger:      logger,
		clock:       clock,
		metrics:     metrics,
		ceiling:     ceiling,
		timeout:     timeout,
	}
}

// Enqueue adds a capture to the transcription queue. It fails fast with
// ErrQueueFull when the effective depth (queued + in-flight) has
// reached the ceiling; callers throttle upstream rather than block.
// Enqueueing a capture that is already queued or in flight is a no-op.
func (w *Worker) Enqueue(captureID, audioPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inFlightID == captureID {
		return nil
	}
	for _, j := range w.queue {
		if j.CaptureID == captureID {
			return nil
		}
	}

	depth := len(w.queue)
	if w.inFlightID != "" {
		depth++
	}
	if depth >= w.ceiling {
		return fmt.Errorf("enqueue capture %s: %w", captureID, ErrQueueFull)
	}

	w.queue = append(w.queue, &job{CaptureID: captureID, AudioPath: audioPath})
	return nil
}

// Drain processes jobs until the queue is empty or ctx is cancelled.
// Cancellation is only observed between jobs: the in-flight job always
// runs to completion so a shutdown never interrupts a ledger commit.
// Returns the number of jobs whose processing finished (in any outcome).
func (w *Worker) Drain(ctx context.Context) (int, error) {
	done := 0
	for {
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		default:
		}

		ok, err := w.ProcessOne()
		if err != nil {
			return done, err
		}
		if !ok {
			return done, nil
		}
		done++
	}
}

// ProcessOne takes the next job and runs it to a terminal outcome or a
// requeue. Returns false when the queue is empty. A job that retries
// counts as not yet finished; it was requeued at the front and will be
// the next job started.
func (w *Worker) ProcessOne() (bool, error) {
	j, ok := w.takeNext()
	if !ok {
		return false, nil
	}
	defer w.release()

	j.Attempts++

	// The attempt deadline is detached from any caller context so that
	// graceful shutdown drains the attempt instead of cancelling it
	// mid-write.
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	transcript, err := w.transcriber.Transcribe(ctx, j.AudioPath)
	cancel()

	if err != nil {
		return true, w.handleFailure(j, err)
	}

	if err := w.commit(j, transcript.Text); err != nil {
		return true, err
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	w.logger.Info("capture transcribed", "capture_id", j.CaptureID, "attempts", j.Attempts)
	return true, nil
}

// handleFailure applies the retry policy: only timeouts retry, exactly
// once, requeued at the front so a partial backlog doesn't starve them.
// Everything else goes to the failure handler.
func (w *Worker) handleFailure(j *job, cause error) error {
	kind := Classify(cause)

	if kind.Retriable() && j.Attempts < maxAttempts {
		w.mu.Lock()
		w.queue = append([]*job{j}, w.queue...)
		w.retried++
		w.mu.Unlock()

		w.logger.Warn("transcription timed out, will retry",
			"capture_id", j.CaptureID, "attempt", j.Attempts)
		return nil
	}

	w.mu.Lock()
	w.failed++
	w.mu.Unlock()

	return w.failures.Handle(j.CaptureID, j.AudioPath, kind, cause, j.Attempts)
}

// commit finalizes a successful transcription: the content hash is
// computed from the transcript and raw_content, content_hash, and
// status move together in one ledger write. If another capture already
// owns the hash, this capture is recorded as its duplicate instead.
func (w *Worker) commit(j *job, text string) error {
	fp := hash.Content([]byte(text))

	err := w.ledger.CommitTranscript(j.CaptureID, text, fp)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrDuplicateContent) {
		return fmt.Errorf("committing transcript for capture %s: %w", j.CaptureID, err)
	}

	original, lookupErr := w.ledger.FindByContentHash(fp)
	if lookupErr != nil {
		return fmt.Errorf("resolving duplicate owner for capture %s: %w", j.CaptureID, lookupErr)
	}

	if err := w.ledger.MarkDuplicate(j.CaptureID, text, fp, original.ID); err != nil {
		return fmt.Errorf("marking capture %s duplicate: %w", j.CaptureID, err)
	}

	exportPath := InboxPath(original.ID)
	if audit, err := w.ledger.FindExclusiveAudit(original.ID); err == nil && audit != nil {
		exportPath = audit.VaultPath
	}

	hashStr := fp.String()
	audit := &model.ExportAudit{
		CaptureID:    j.CaptureID,
		VaultPath:    exportPath,
		HashAtExport: &hashStr,
		Mode:         model.AuditDuplicateSkip,
		ExportedAt:   w.clock.Now(),
	}
	if err := w.ledger.RecordAudit(audit); err != nil {
		return fmt.Errorf("recording duplicate audit for capture %s: %w", j.CaptureID, err)
	}

	w.logger.Info("duplicate transcript suppressed",
		"capture_id", j.CaptureID, "original_id", original.ID)
	return nil
}

// takeNext pops the front of the queue and sets the in-flight guard.
func (w *Worker) takeNext() (*job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inFlightID != "" || len(w.queue) == 0 {
		return nil, false
	}
	j := w.queue[0]
	w.queue = w.queue[1:]
	w.inFlightID = j.CaptureID
	return j, true
}

func (w *Worker) release() {
	w.mu.Lock()
	w.inFlightID = ""
	w.mu.Unlock()
}

// Stats returns a snapshot of queue depth and counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStats{
		QueueDepth: len(w.queue),
		InFlight:   w.inFlightID != "",
		Processed:  w.processed,
		Failed:     w.failed,
		Retried:    w.retried,
	}
}
