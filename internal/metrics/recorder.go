// Package metrics provides an in-process metrics sink. Samples are held
// in memory and surfaced through the status command; there is no
// network exporter.
package metrics

import (
	"sort"
	"strings"
	"sync"

	"inkwell/internal/pipeline"
)

// Recorder accumulates counters and duration samples in memory.
// Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	counters  map[string]int64
	durations map[string][]float64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters:  make(map[string]int64),
		durations: make(map[string][]float64),
	}
}

// key joins a metric name with its sorted tags so the same tag set
// always lands in the same series.
func key(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	return name + "{" + strings.Join(sorted, ",") + "}"
}

func (r *Recorder) Count(name string, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name, tags)]++
}

func (r *Recorder) ObserveMs(name string, ms float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, tags)
	r.durations[k] = append(r.durations[k], ms)
}

// Counters returns a snapshot of all counter series.
func (r *Recorder) Counters() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// CounterValue returns the value of a single counter series (0 if unset).
func (r *Recorder) CounterValue(name string, tags ...string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key(name, tags)]
}

// Durations returns a snapshot of all duration series.
func (r *Recorder) Durations() map[string][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]float64, len(r.durations))
	for k, v := range r.durations {
		cp := make([]float64, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

var _ pipeline.Metrics = (*Recorder)(nil)
