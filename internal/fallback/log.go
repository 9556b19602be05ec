// Package fallback provides the built-in fallback_recorder
// implementations (§6.5): recorders wired into the facade for metrics
// that fall outside the scope sigil, selected by config.FallbackRecorder.
package fallback

import (
	"github.com/roboplc/metrics-exporter-scope/internal/obslog"
	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

// LogRecorder forwards every describe/register call for a foreign metric
// to the structured logger instead of a real second exporter. It is the
// "log" fallback_recorder option: a minimal, always-available stand-in
// for wiring a real pull-based scrape exporter as the fallback, which is
// out of scope for this module (§1 Non-goals) but left as the obvious
// next step for an embedding host.
type LogRecorder struct{}

// NewLogRecorder builds a LogRecorder. It holds no state.
func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

func (LogRecorder) DescribeGauge(key scope.Key, unit, description string) {
	obslog.Debug("fallback_describe", map[string]any{"kind": "gauge", "name": key.Name, "unit": unit, "description": description})
}

func (LogRecorder) RegisterGauge(key scope.Key) scope.GaugeHandle {
	obslog.Debug("fallback_register", map[string]any{"kind": "gauge", "name": key.Name})
	return scope.NoopHandle{}
}

func (LogRecorder) DescribeCounter(key scope.Key, unit, description string) {
	obslog.Debug("fallback_describe", map[string]any{"kind": "counter", "name": key.Name, "unit": unit, "description": description})
}

func (LogRecorder) RegisterCounter(key scope.Key) scope.GaugeHandle {
	obslog.Debug("fallback_register", map[string]any{"kind": "counter", "name": key.Name})
	return scope.NoopHandle{}
}

func (LogRecorder) DescribeHistogram(key scope.Key, unit, description string) {
	obslog.Debug("fallback_describe", map[string]any{"kind": "histogram", "name": key.Name, "unit": unit, "description": description})
}

func (LogRecorder) RegisterHistogram(key scope.Key) scope.GaugeHandle {
	obslog.Debug("fallback_register", map[string]any{"kind": "histogram", "name": key.Name})
	return scope.NoopHandle{}
}
