// Package transcribe turns staged audio into text by driving an
// external speech-to-text binary. The pipeline only sees the
// Transcriber interface and typed failure kinds; everything about the
// process contract lives here.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"inkwell/internal/pipeline"
)

// Exit codes the transcriber binary uses to report structured failures.
// Anything else nonzero is an unclassified engine error.
const (
	exitCorruptAudio = 3
	exitOOM          = 4
)

// commandOutput is the JSON document the binary writes to stdout on success.
type commandOutput struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// CommandTranscriber runs an external binary once per attempt and
// parses its stdout. The context deadline is enforced by
// exec.CommandContext, which kills the process when it fires.
type CommandTranscriber struct {
	command string
	args    []string
}

// NewCommandTranscriber creates a transcriber driving the given binary.
// args are passed before the audio path.
func NewCommandTranscriber(command string, args []string) (*CommandTranscriber, error) {
	if command == "" {
		return nil, fmt.Errorf("transcriber command must not be empty")
	}
	return &CommandTranscriber{command: command, args: args}, nil
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, audioPath string) (*pipeline.Transcript, error) {
	// Check the audio file before spawning anything, so a missing or
	// unreadable file is classified as our failure rather than the
	// engine's.
	if err := checkReadable(audioPath); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(t.args)+1)
	args = append(args, t.args...)
	args = append(args, audioPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return nil, classifyRunError(ctx, err, stderr.String())
	}

	var out commandOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, &pipeline.TranscriptionError{
			Kind: pipeline.KindWhisperError,
			Err:  fmt.Errorf("malformed transcriber output: %w", err),
		}
	}
	if out.Text == "" {
		return nil, &pipeline.TranscriptionError{
			Kind: pipeline.KindWhisperError,
			Err:  fmt.Errorf("transcriber produced empty text"),
		}
	}

	return &pipeline.Transcript{Text: out.Text, Confidence: out.Confidence}, nil
}

func checkReadable(audioPath string) error {
	f, err := os.Open(audioPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &pipeline.TranscriptionError{Kind: pipeline.KindFileNotFound, Err: err}
		}
		if os.IsPermission(err) {
			return &pipeline.TranscriptionError{Kind: pipeline.KindFileUnreadable, Err: err}
		}
		return &pipeline.TranscriptionError{Kind: pipeline.KindFileUnreadable, Err: err}
	}
	f.Close()
	return nil
}

func classifyRunError(ctx context.Context, err error, stderr string) error {
	// A killed process reports an opaque exit error; the context tells
	// us whether the deadline was the cause.
	if ctx.Err() != nil {
		return &pipeline.TranscriptionError{Kind: pipeline.KindTimeout, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		kind := pipeline.KindWhisperError
		switch exitErr.ExitCode() {
		case exitCorruptAudio:
			kind = pipeline.KindCorruptAudio
		case exitOOM:
			kind = pipeline.KindOOM
		}
		return &pipeline.TranscriptionError{
			Kind: kind,
			Err:  fmt.Errorf("transcriber exited with code %d: %s", exitErr.ExitCode(), stderr),
		}
	}

	// The binary could not be started at all (missing, not executable).
	return &pipeline.TranscriptionError{
		Kind: pipeline.KindModelLoadFailure,
		Err:  fmt.Errorf("starting transcriber: %w", err),
	}
}

var _ pipeline.Transcriber = (*CommandTranscriber)(nil)
