// Package scope is the host-facing half of the metrics exporter: a
// lock-free gauge registry plus the recorder facade that a host process's
// instrumentation calls into. It is a standalone module (mirroring
// libs/observability's own go.mod in the source this project grew out of)
// specifically so an embedding application can import it directly,
// intern gauges, and feed values into the registry this exporter streams
// from.
package scope

import (
	"sync"
	"sync/atomic"

	"math"
)

// Labels is an immutable label set, fixed at first registration.
type Labels map[string]string

// clone returns a defensive copy so callers can't mutate a cell's labels
// through a map they still hold a reference to.
func (l Labels) clone() Labels {
	if len(l) == 0 {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// cell is the per-metric shared state. Once created it lives for the
// process lifetime; Registry never removes entries.
type cell struct {
	name        string
	labels      Labels // immutable after construction
	value       atomic.Uint64 // math.Float64bits(value)
	lastUpdate  atomic.Int64  // monotonic nanoseconds
	description atomic.Value  // string, describe() text, wire-protocol-irrelevant
}

// Handle is the stable, process-lifetime reference returned by Intern.
// Producers hold onto a Handle and call Set on it directly; the hot path
// never looks the metric up by name again.
type Handle struct {
	c *cell
}

// Registry is a concurrent name -> *cell map. The zero value is usable.
type Registry struct {
	cells sync.Map // string -> *cell
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Intern performs idempotent registration: the first caller for a given
// name allocates and wins the cell; later callers (even concurrent ones)
// get the same Handle back and their labels are discarded.
func (r *Registry) Intern(name string, labels Labels) Handle {
	if existing, ok := r.cells.Load(name); ok {
		return Handle{c: existing.(*cell)}
	}
	c := &cell{name: name, labels: labels.clone()}
	actual, _ := r.cells.LoadOrStore(name, c)
	return Handle{c: actual.(*cell)}
}

// Describe records a description on the cell. It never affects the wire
// protocol; it exists purely so the recorder facade's describe_gauge call
// has somewhere to put its string.
func (h Handle) Describe(description string) {
	h.c.description.Store(description)
}

// Set atomically stores value and the last-update timestamp. Lock-free,
// wait-free, and allocation-free: this is the producer hot path and must
// stay that way.
func (h Handle) Set(value float64, nowNanos int64) {
	h.c.value.Store(math.Float64bits(value))
	h.c.lastUpdate.Store(nowNanos)
}

// Name returns the metric's full name, sigil included.
func (h Handle) Name() string { return h.c.name }

// Labels returns the cell's immutable label set.
func (h Handle) Labels() Labels { return h.c.labels }

// Live holds one metric's state as observed by an iteration pass.
type Live struct {
	Name       string
	Labels     Labels
	Value      float64
	LastUpdate int64
}

// IterLive calls fn for every metric currently considered live. A metric
// with LastUpdate == 0 has never been Set and is reported as live anyway
// (the default recency window is "forever"); callers that configure a
// recency window filter on LastUpdate themselves via recentSince.
//
// Iteration is not globally consistent: each emitted value was stored at
// some instant <= the time IterLive was called, but different metrics may
// reflect different instants. Cells inserted concurrently with the scan
// may or may not be observed.
func (r *Registry) IterLive(recentSince int64, fn func(Live)) {
	r.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		last := c.lastUpdate.Load()
		if recentSince != 0 && last < recentSince {
			// last == 0 means "never updated", which also fails the window.
			return true
		}
		fn(Live{
			Name:       c.name,
			Labels:     c.labels,
			Value:      math.Float64frombits(c.value.Load()),
			LastUpdate: last,
		})
		return true
	})
}
