package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inkwell/internal/pipeline"
)

// fakeEngine writes an executable shell script standing in for the
// transcriber binary and returns its path.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("writing fake engine: %v", err)
	}
	return path
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.m4a")
	if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
		t.Fatalf("writing audio file: %v", err)
	}
	return path
}

func kindOf(t *testing.T, err error) pipeline.ErrorKind {
	t.Helper()
	var terr *pipeline.TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("error %v is not a TranscriptionError", err)
	}
	return terr.Kind
}

func TestCommandTranscriber_Transcribe(t *testing.T) {
	t.Run("parses engine output", func(t *testing.T) {
		engine := fakeEngine(t, `echo '{"text":"hello there","confidence":0.92}'`)
		tr, err := NewCommandTranscriber(engine, nil)
		if err != nil {
			t.Fatalf("NewCommandTranscriber() error: %v", err)
		}

		transcript, err := tr.Transcribe(context.Background(), audioFile(t))
		if err != nil {
			t.Fatalf("Transcribe() error: %v", err)
		}
		if transcript.Text != "hello there" {
			t.Errorf("text = %q, want %q", transcript.Text, "hello there")
		}
		if transcript.Confidence != 0.92 {
			t.Errorf("confidence = %v, want 0.92", transcript.Confidence)
		}
	})

	t.Run("passes extra args before the audio path", func(t *testing.T) {
		engine := fakeEngine(t, `echo "{\"text\":\"model=$1 file=$2\",\"confidence\":1}"`)
		tr, err := NewCommandTranscriber(engine, []string{"small.en"})
		if err != nil {
			t.Fatalf("NewCommandTranscriber() error: %v", err)
		}

		audio := audioFile(t)
		transcript, err := tr.Transcribe(context.Background(), audio)
		if err != nil {
			t.Fatalf("Transcribe() error: %v", err)
		}
		want := "model=small.en file=" + audio
		if transcript.Text != want {
			t.Errorf("text = %q, want %q", transcript.Text, want)
		}
	})

	t.Run("classifies exit codes", func(t *testing.T) {
		tests := []struct {
			name   string
			script string
			want   pipeline.ErrorKind
		}{
			{"corrupt audio", "exit 3", pipeline.KindCorruptAudio},
			{"out of memory", "exit 4", pipeline.KindOOM},
			{"engine error", "exit 1", pipeline.KindWhisperError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				engine := fakeEngine(t, tt.script)
				tr, _ := NewCommandTranscriber(engine, nil)

				_, err := tr.Transcribe(context.Background(), audioFile(t))
				if got := kindOf(t, err); got != tt.want {
					t.Errorf("kind = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("missing audio file", func(t *testing.T) {
		engine := fakeEngine(t, `echo '{"text":"x","confidence":1}'`)
		tr, _ := NewCommandTranscriber(engine, nil)

		_, err := tr.Transcribe(context.Background(), "/does/not/exist.m4a")
		if got := kindOf(t, err); got != pipeline.KindFileNotFound {
			t.Errorf("kind = %v, want file_not_found", got)
		}
	})

	t.Run("missing engine binary", func(t *testing.T) {
		tr, _ := NewCommandTranscriber("/does/not/exist/engine", nil)

		_, err := tr.Transcribe(context.Background(), audioFile(t))
		if got := kindOf(t, err); got != pipeline.KindModelLoadFailure {
			t.Errorf("kind = %v, want model_load_failure", got)
		}
	})

	t.Run("malformed output", func(t *testing.T) {
		engine := fakeEngine(t, `echo 'this is not json'`)
		tr, _ := NewCommandTranscriber(engine, nil)

		_, err := tr.Transcribe(context.Background(), audioFile(t))
		if got := kindOf(t, err); got != pipeline.KindWhisperError {
			t.Errorf("kind = %v, want whisper_error", got)
		}
	})

	t.Run("empty transcript is an engine error", func(t *testing.T) {
		engine := fakeEngine(t, `echo '{"text":"","confidence":0.5}'`)
		tr, _ := NewCommandTranscriber(engine, nil)

		_, err := tr.Transcribe(context.Background(), audioFile(t))
		if got := kindOf(t, err); got != pipeline.KindWhisperError {
			t.Errorf("kind = %v, want whisper_error", got)
		}
	})

	t.Run("deadline kills the engine", func(t *testing.T) {
		engine := fakeEngine(t, `sleep 10`)
		tr, _ := NewCommandTranscriber(engine, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := tr.Transcribe(ctx, audioFile(t))
		if got := kindOf(t, err); got != pipeline.KindTimeout {
			t.Errorf("kind = %v, want timeout", got)
		}
	})
}

func TestNewCommandTranscriber_Validation(t *testing.T) {
	if _, err := NewCommandTranscriber("", nil); err == nil {
		t.Error("empty command should be rejected")
	}
}
