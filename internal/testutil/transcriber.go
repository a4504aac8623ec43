package testutil

import (
	"context"
	"fmt"
	"sync"

	"inkwell/internal/pipeline"
)

// StubTranscriber returns scripted results keyed by audio path. Paths
// with no script entry fail with an unknown-kind error. Safe for
// concurrent use.
type StubTranscriber struct {
	mu      sync.Mutex
	results map[string][]stubResult
	calls   []string
}

type stubResult struct {
	transcript *pipeline.Transcript
	err        error
}

// NewStubTranscriber creates an empty StubTranscriber.
func NewStubTranscriber() *StubTranscriber {
	return &StubTranscriber{results: make(map[string][]stubResult)}
}

// Succeed scripts a successful transcription for path.
func (s *StubTranscriber) Succeed(path, text string) {
	s.push(path, stubResult{transcript: &pipeline.Transcript{Text: text, Confidence: 0.9}})
}

// Fail scripts a failure of the given kind for path. Results are
// consumed in order, so Fail followed by Succeed scripts a transient
// failure that recovers on retry.
func (s *StubTranscriber) Fail(path string, kind pipeline.ErrorKind) {
	s.push(path, stubResult{err: &pipeline.TranscriptionError{
		Kind: kind,
		Err:  fmt.Errorf("scripted %s failure", kind),
	}})
}

// Hang scripts an attempt that blocks until the context deadline for path.
func (s *StubTranscriber) Hang(path string) {
	s.push(path, stubResult{})
}

func (s *StubTranscriber) push(path string, r stubResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[path] = append(s.results[path], r)
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audioPath string) (*pipeline.Transcript, error) {
	s.mu.Lock()
	s.calls = append(s.calls, audioPath)
	var r stubResult
	var scripted bool
	if queue := s.results[audioPath]; len(queue) > 0 {
		r = queue[0]
		if len(queue) > 1 {
			s.results[audioPath] = queue[1:]
		}
		scripted = true
	}
	s.mu.Unlock()

	if !scripted {
		return nil, fmt.Errorf("no scripted result for %s", audioPath)
	}
	if r.transcript == nil && r.err == nil {
		// Hang until the attempt deadline fires.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.transcript, r.err
}

// Calls returns the audio paths passed to Transcribe, in order.
func (s *StubTranscriber) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ pipeline.Transcriber = (*StubTranscriber)(nil)
