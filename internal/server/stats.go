package server

import "sync/atomic"

// Stats is the server's self-observability surface (SPEC_FULL §9.3): pure
// in-process counters/gauges about the exporter itself. The server never
// writes them to a connection on its own; they are read through
// Server.Stats, and the metrics-exporter-scope command republishes them as
// ordinary ~-prefixed gauges through the recorder facade.
type Stats struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Uint64
	snapshotsSent    atomic.Uint64
	snapshotsDropped atomic.Uint64
	metadataSent     atomic.Uint64
}

// StatsSnapshot is an immutable copy of the current counters.
type StatsSnapshot struct {
	SessionsActive   int64
	SessionsTotal    uint64
	SnapshotsSent    uint64
	SnapshotsDropped uint64
	MetadataSent     uint64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		SessionsActive:   s.sessionsActive.Load(),
		SessionsTotal:    s.sessionsTotal.Load(),
		SnapshotsSent:    s.snapshotsSent.Load(),
		SnapshotsDropped: s.snapshotsDropped.Load(),
		MetadataSent:     s.metadataSent.Load(),
	}
}
