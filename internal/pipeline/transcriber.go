package pipeline

import (
	"context"
	"fmt"
)

// Transcript is the result of a successful transcription.
type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber is the opaque transcription capability consumed by the
// worker. Implementations must honor ctx cancellation and perform no
// internal retry of their own.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}

// TranscriptionError carries a typed failure classification from a
// Transcriber implementation. The worker and failure handler branch on
// Kind, never on message text.
type TranscriptionError struct {
	Kind ErrorKind
	Err  error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription failed: %s", e.Kind)
	}
	return fmt.Sprintf("transcription failed (%s): %v", e.Kind, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
