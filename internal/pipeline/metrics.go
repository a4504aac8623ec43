package pipeline

// Metric names emitted by the pipeline.
const (
	MetricTranscriptionFailureTotal = "transcription_failure_total"
	MetricExportWriteMs             = "export_write_ms"
)

// Metrics is an optional sink for counters and duration samples.
// Tags are "key=value" strings. Implementations must never block the
// pipeline; emission failures are swallowed, not returned.
type Metrics interface {
	Count(name string, tags ...string)
	ObserveMs(name string, ms float64, tags ...string)
}

// NopMetrics discards all samples.
type NopMetrics struct{}

func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) Count(string, ...string)              {}
func (*NopMetrics) ObserveMs(string, float64, ...string) {}
