package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/pipeline"
	"inkwell/internal/testutil"
)

func TestWorker_Enqueue(t *testing.T) {
	t.Run("rejects past the ceiling", func(t *testing.T) {
		f := newFixtureWithWorker(t, 2, 50*time.Millisecond)

		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("first Enqueue() error: %v", err)
		}
		if err := f.worker.Enqueue("cap-2", "/audio/2.m4a"); err != nil {
			t.Fatalf("second Enqueue() error: %v", err)
		}

		err := f.worker.Enqueue("cap-3", "/audio/3.m4a")
		if !errors.Is(err, pipeline.ErrQueueFull) {
			t.Fatalf("third Enqueue() error = %v, want ErrQueueFull", err)
		}
	})

	t.Run("is idempotent per capture", func(t *testing.T) {
		f := newFixtureWithWorker(t, 2, 50*time.Millisecond)

		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("re-Enqueue() error: %v", err)
		}

		if got := f.worker.Stats().QueueDepth; got != 1 {
			t.Errorf("queue depth = %d, want 1", got)
		}
	})

	t.Run("ignores the capture currently in flight", func(t *testing.T) {
		f := newFixture(t)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")

		clock := f.clock
		logger := pipeline.NewNopLogger()
		metrics := pipeline.NewNopMetrics()
		tr := &reentrantTranscriber{}
		exporter := pipeline.NewExporter(f.ledger, f.vault, logger, clock, metrics)
		failures := pipeline.NewFailureHandler(f.ledger, exporter, logger, clock, metrics)
		w := pipeline.NewWorker(f.ledger, tr, failures, logger, clock, metrics, 0, 50*time.Millisecond)
		tr.worker = w

		if err := w.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		ok, err := w.ProcessOne()
		if err != nil || !ok {
			t.Fatalf("ProcessOne() = %v, %v", ok, err)
		}

		if got := w.Stats().QueueDepth; got != 0 {
			t.Errorf("queue depth = %d, want 0 (in-flight capture must not requeue)", got)
		}
		if got := captureStatus(t, f, "cap-1"); got != model.StatusTranscribed {
			t.Errorf("status = %q, want transcribed", got)
		}
	})
}

// reentrantTranscriber enqueues its own capture while it is being
// processed, as a poller re-observing an unprocessed file would.
type reentrantTranscriber struct {
	worker *pipeline.Worker
}

func (r *reentrantTranscriber) Transcribe(ctx context.Context, audioPath string) (*pipeline.Transcript, error) {
	if err := r.worker.Enqueue("cap-1", audioPath); err != nil {
		return nil, err
	}
	return &pipeline.Transcript{Text: "in-flight transcript"}, nil
}

func TestWorker_Drain(t *testing.T) {
	t.Run("transcribes and commits in one write", func(t *testing.T) {
		f := newFixture(t)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")
		f.transcriber.Succeed("/audio/1.m4a", "hello world")
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}

		done, err := f.worker.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain() error: %v", err)
		}
		if done != 1 {
			t.Errorf("Drain() = %d, want 1", done)
		}

		c, err := f.ledger.GetCapture("cap-1")
		if err != nil {
			t.Fatalf("GetCapture() error: %v", err)
		}
		if c.Status != model.StatusTranscribed {
			t.Errorf("status = %q, want transcribed", c.Status)
		}
		if c.RawContent == nil || *c.RawContent != "hello world" {
			t.Errorf("raw content = %v, want transcript", c.RawContent)
		}
		wantHash := testutil.SHA256Hex([]byte("hello world"))
		if c.ContentHash == nil || *c.ContentHash != wantHash {
			t.Errorf("content hash = %v, want %s", c.ContentHash, wantHash)
		}
	})

	t.Run("retries a timeout exactly once at the front", func(t *testing.T) {
		f := newFixtureWithWorker(t, 0, 15*time.Millisecond)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")
		stageCapture(t, f, "cap-2", model.SourceVoice, nil, "{}")
		f.transcriber.Hang("/audio/1.m4a")
		f.transcriber.Succeed("/audio/1.m4a", "first memo")
		f.transcriber.Succeed("/audio/2.m4a", "second memo")
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if err := f.worker.Enqueue("cap-2", "/audio/2.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}

		if _, err := f.worker.Drain(context.Background()); err != nil {
			t.Fatalf("Drain() error: %v", err)
		}

		// The retried job ran before cap-2's first attempt.
		calls := f.transcriber.Calls()
		want := []string{"/audio/1.m4a", "/audio/1.m4a", "/audio/2.m4a"}
		if len(calls) != len(want) {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
		for i := range want {
			if calls[i] != want[i] {
				t.Fatalf("calls = %v, want %v", calls, want)
			}
		}

		stats := f.worker.Stats()
		if stats.Retried != 1 {
			t.Errorf("retried = %d, want 1", stats.Retried)
		}
		if stats.Processed != 2 {
			t.Errorf("processed = %d, want 2", stats.Processed)
		}
		if got := captureStatus(t, f, "cap-1"); got != model.StatusTranscribed {
			t.Errorf("cap-1 status = %q, want transcribed", got)
		}
	})

	t.Run("second timeout exhausts the retry budget", func(t *testing.T) {
		f := newFixtureWithWorker(t, 0, 15*time.Millisecond)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")
		f.transcriber.Hang("/audio/1.m4a")
		f.transcriber.Hang("/audio/1.m4a")
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}

		if _, err := f.worker.Drain(context.Background()); err != nil {
			t.Fatalf("Drain() error: %v", err)
		}

		// Timeouts are transient: no placeholder, capture parks at
		// failed_transcription.
		if got := captureStatus(t, f, "cap-1"); got != model.StatusFailedTranscription {
			t.Errorf("status = %q, want failed_transcription", got)
		}
		logs, err := f.ledger.ErrorsForCapture("cap-1")
		if err != nil {
			t.Fatalf("ErrorsForCapture() error: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("error rows = %d, want 1", len(logs))
		}
		if logs[0].ErrorType != "timeout" {
			t.Errorf("error type = %q, want timeout", logs[0].ErrorType)
		}
		if logs[0].AttemptCount != 2 {
			t.Errorf("attempt count = %d, want 2", logs[0].AttemptCount)
		}
		if f.worker.Stats().Failed != 1 {
			t.Errorf("failed = %d, want 1", f.worker.Stats().Failed)
		}
	})

	t.Run("duplicate transcript is suppressed, not exported twice", func(t *testing.T) {
		f := newFixture(t)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")
		stageCapture(t, f, "cap-2", model.SourceVoice, nil, "{}")
		f.transcriber.Succeed("/audio/1.m4a", "identical words")
		f.transcriber.Succeed("/audio/2.m4a", "identical words")
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		if err := f.worker.Enqueue("cap-2", "/audio/2.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}

		if _, err := f.worker.Drain(context.Background()); err != nil {
			t.Fatalf("Drain() error: %v", err)
		}

		if got := captureStatus(t, f, "cap-1"); got != model.StatusTranscribed {
			t.Errorf("cap-1 status = %q, want transcribed", got)
		}
		if got := captureStatus(t, f, "cap-2"); got != model.StatusExportedDuplicate {
			t.Errorf("cap-2 status = %q, want exported_duplicate", got)
		}

		c2, err := f.ledger.GetCapture("cap-2")
		if err != nil {
			t.Fatalf("GetCapture() error: %v", err)
		}
		if c2.ContentHash != nil {
			t.Error("duplicate must not hold the content hash")
		}
		if c2.RawContent == nil || *c2.RawContent != "identical words" {
			t.Errorf("duplicate keeps its transcript, got %v", c2.RawContent)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(c2.MetaJSON), &meta); err != nil {
			t.Fatalf("parsing meta: %v", err)
		}
		if meta["duplicate_of"] != "cap-1" {
			t.Errorf("meta duplicate_of = %v, want cap-1", meta["duplicate_of"])
		}

		audit, err := f.ledger.FindExclusiveAudit("cap-2")
		if err != nil {
			t.Fatalf("FindExclusiveAudit() error: %v", err)
		}
		if audit != nil {
			t.Error("duplicate must not have an exclusive export audit")
		}
	})

	t.Run("cancellation stops between jobs", func(t *testing.T) {
		f := newFixture(t)
		stageCapture(t, f, "cap-1", model.SourceVoice, nil, "{}")
		f.transcriber.Succeed("/audio/1.m4a", "memo")
		if err := f.worker.Enqueue("cap-1", "/audio/1.m4a"); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done, err := f.worker.Drain(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Drain() error = %v, want context.Canceled", err)
		}
		if done != 0 {
			t.Errorf("done = %d, want 0", done)
		}
		if got := f.worker.Stats().QueueDepth; got != 1 {
			t.Errorf("queue depth = %d, want 1 (job preserved)", got)
		}
	})
}
