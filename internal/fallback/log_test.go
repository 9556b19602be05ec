package fallback

import (
	"testing"

	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

func TestLogRecorder_RegisterGauge_ReturnsUsableHandle(t *testing.T) {
	r := NewLogRecorder()
	h := r.RegisterGauge(scope.Key{Name: "cpu_temp"})
	h.Set(42.0) // must not panic
}

func TestLogRecorder_ImplementsRecorderInterface(t *testing.T) {
	var _ scope.Recorder = NewLogRecorder()
}
