// Package snapshot implements the snapshot and metadata builders:
// point-in-time views over the gauge registry, shaped exactly as the wire
// packets expect them.
package snapshot

import (
	"time"

	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

// Metadata is the information packet's content: every live metric's
// label set.
type Metadata struct {
	Metrics map[string]map[string]string
}

// BuildMetadata produces a Metadata view of every metric in reg considered
// live at the instant of the call (recentSince == 0 means the default
// "forever" recency window).
func BuildMetadata(reg *scope.Registry, recentSince int64) Metadata {
	out := make(map[string]map[string]string)
	reg.IterLive(recentSince, func(l scope.Live) {
		out[l.Name] = l.Labels
	})
	return Metadata{Metrics: out}
}

// Keys returns the name set of md, suitable as BuildSnapshot's allowed
// parameter for the next snapshot on the same connection.
func (md Metadata) Keys() map[string]struct{} {
	out := make(map[string]struct{}, len(md.Metrics))
	for name := range md.Metrics {
		out[name] = struct{}{}
	}
	return out
}

// Snapshot is the snapshot packet's content: a timestamp taken once at
// the start of the build, relative to the connection's session t0, plus
// every live metric's current value.
type Snapshot struct {
	T uint64
	D map[string]float64
}

// BuildSnapshot produces a Snapshot view of reg, with T measured as
// nanoseconds since t0. now is the monotonic instant to take T from; it
// is read once, before iteration begins.
//
// allowed restricts the emitted key set to exactly the names the caller
// knows were announced by the most recently emitted metadata packet on
// this connection: a snapshot's d map must enumerate exactly that key
// set, minus anything that became non-live since, never more. Without
// this filter a metric interned after the last metadata emission but
// before this snapshot would appear in d under a name the client was
// never told about via metadata.
func BuildSnapshot(reg *scope.Registry, t0, now time.Time, recentSince int64, allowed map[string]struct{}) Snapshot {
	elapsed := now.Sub(t0)
	if elapsed < 0 {
		elapsed = 0
	}
	out := make(map[string]float64, len(allowed))
	reg.IterLive(recentSince, func(l scope.Live) {
		if _, ok := allowed[l.Name]; !ok {
			return
		}
		out[l.Name] = l.Value
	})
	return Snapshot{T: uint64(elapsed.Nanoseconds()), D: out}
}
