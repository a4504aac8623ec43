package metrics

import "testing"

func TestRecorder_Count(t *testing.T) {
	r := NewRecorder()

	r.Count("transcription_failure_total", "error_type=timeout")
	r.Count("transcription_failure_total", "error_type=timeout")
	r.Count("transcription_failure_total", "error_type=oom")

	if got := r.CounterValue("transcription_failure_total", "error_type=timeout"); got != 2 {
		t.Errorf("timeout count = %d, want 2", got)
	}
	if got := r.CounterValue("transcription_failure_total", "error_type=oom"); got != 1 {
		t.Errorf("oom count = %d, want 1", got)
	}
	if got := r.CounterValue("transcription_failure_total", "error_type=unknown"); got != 0 {
		t.Errorf("unset count = %d, want 0", got)
	}
}

func TestRecorder_TagOrderIndependence(t *testing.T) {
	r := NewRecorder()

	r.Count("export_write_ms", "source=voice", "mode=initial")
	r.Count("export_write_ms", "mode=initial", "source=voice")

	if got := r.CounterValue("export_write_ms", "source=voice", "mode=initial"); got != 2 {
		t.Errorf("count = %d, want 2 (tag order must not split series)", got)
	}
}

func TestRecorder_ObserveMs(t *testing.T) {
	r := NewRecorder()

	r.ObserveMs("export_write_ms", 12.5, "mode=initial")
	r.ObserveMs("export_write_ms", 3.25, "mode=initial")

	durations := r.Durations()
	series := durations["export_write_ms{mode=initial}"]
	if len(series) != 2 || series[0] != 12.5 || series[1] != 3.25 {
		t.Errorf("series = %v, want [12.5 3.25]", series)
	}
}
