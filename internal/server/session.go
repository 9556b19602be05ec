package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/roboplc/metrics-exporter-scope/internal/config"
	"github.com/roboplc/metrics-exporter-scope/internal/obslog"
	"github.com/roboplc/metrics-exporter-scope/internal/snapshot"
	"github.com/roboplc/metrics-exporter-scope/internal/wire"
	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

// writeBudget bounds how long a single packet write may block before it
// is treated as "socket not writable" and dropped (§4.4). A short,
// fixed budget is the implementer's-choice non-blocking-write substitute
// the design notes call for: real non-blocking sockets aren't portably
// exposed through net.Conn, so a short write deadline plays the same
// role — a timeout here means "would have blocked," not "is slow."
const writeBudget = 20 * time.Millisecond

// session is the per-connection state machine: Accepted -> AwaitSettings
// -> Streaming -> Closed (§4.4). Each session is independent; nothing is
// shared with any other connection except the registry it reads from.
type session struct {
	conn  net.Conn
	id    uuid.UUID
	cfg   config.Config
	reg   *scope.Registry
	stats *Stats
}

func newSession(conn net.Conn, cfg config.Config, reg *scope.Registry, stats *Stats) *session {
	return &session{conn: conn, id: uuid.New(), cfg: cfg, reg: reg, stats: stats}
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	logFields := map[string]any{"session_id": s.id.String(), "remote": s.conn.RemoteAddr().String()}
	obslog.Info("connection_accepted", logFields)
	defer obslog.Info("connection_closed", logFields)

	if err := wire.EncodeVersion(s.conn, wire.ProtocolVersion); err != nil {
		obslog.Debug("transport_error", merge(logFields, map[string]any{"phase": "version", "error": err}))
		return
	}

	settings, err := s.awaitSettings()
	if err != nil {
		obslog.Debug("handshake_error", merge(logFields, map[string]any{"error": err}))
		return
	}

	samplingInterval := time.Duration(settings.SamplingInterval)
	if samplingInterval < s.cfg.MinSamplingInterval {
		obslog.Debug("handshake_rejected_interval_too_small", merge(logFields, map[string]any{
			"requested_ns": settings.SamplingInterval,
			"floor_ns":     s.cfg.MinSamplingInterval.Nanoseconds(),
		}))
		return
	}

	s.stream(ctx, samplingInterval, logFields)
}

// awaitSettings reads exactly one MessagePack value as ClientSettings,
// bounded by the configured handshake timeout (§5: "read timeout on the
// handshake phase").
func (s *session) awaitSettings() (wire.ClientSettings, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return wire.ClientSettings{}, err
	}
	settings, err := wire.DecodeSettings(s.conn)
	if err != nil {
		return wire.ClientSettings{}, err
	}
	if settings.SamplingInterval == 0 {
		return wire.ClientSettings{}, errors.New("server: missing required sampling_interval")
	}
	// No read deadline during streaming: ClientSettings is one-shot
	// (SPEC_FULL §9.4), so no further reads are ever attempted.
	return settings, s.conn.SetReadDeadline(time.Time{})
}

// stream drives the Streaming state (§4.4): two independent deadlines,
// metadata firing immediately then on a fixed grid, snapshots firing
// every samplingInterval starting at t0+samplingInterval.
func (s *session) stream(ctx context.Context, samplingInterval time.Duration, logFields map[string]any) {
	t0 := time.Now()

	breaker := newDropBreaker(s.cfg.MaxConsecutiveDrops)

	// knownKeys is the name set announced by the most recently *emitted*
	// (successfully sent) metadata packet. Every snapshot is filtered down
	// to exactly this set: a metric interned after the last metadata send
	// but before the next snapshot tick must not leak into the snapshot
	// under a name the client was never told about (§3 invariant).
	knownKeys, ok := s.emitMetadata(breaker, nil, logFields)
	if !ok {
		return
	}

	metadataTicker := time.NewTicker(s.cfg.MetadataInterval)
	defer metadataTicker.Stop()
	snapshotTicker := time.NewTicker(samplingInterval)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-metadataTicker.C:
			keys, ok := s.emitMetadata(breaker, knownKeys, logFields)
			if !ok {
				return
			}
			knownKeys = keys
		case <-snapshotTicker.C:
			// If metadata is also due for this instant, service it first
			// (§4.4: "if both are due, metadata is emitted before the
			// snapshot").
			select {
			case <-metadataTicker.C:
				keys, ok := s.emitMetadata(breaker, knownKeys, logFields)
				if !ok {
					return
				}
				knownKeys = keys
			default:
			}
			if !s.emitSnapshot(breaker, t0, knownKeys, logFields) {
				return
			}
		}
	}
}

// emitMetadata builds and sends one information packet. On success it
// returns the newly announced name set and true. On a would-block drop
// it returns the unchanged previous name set (the client never saw the
// new one, so the old set is still what snapshots must honor) and true.
// It returns false if the connection must be closed (transport error, or
// the drop breaker tripped).
func (s *session) emitMetadata(breaker *dropBreaker, previousKeys map[string]struct{}, logFields map[string]any) (map[string]struct{}, bool) {
	md := snapshot.BuildMetadata(s.reg, 0)
	dropped, transportErr := s.send(breaker, func(w io.Writer) error {
		return wire.EncodeMetadata(w, md.Metrics)
	})
	if transportErr != nil {
		obslog.Debug("transport_error", merge(logFields, map[string]any{"phase": "metadata", "error": transportErr}))
		return nil, false
	}
	if dropped {
		s.stats.snapshotsDropped.Add(1) // shared drop counter; metadata and snapshot drops both count as lost ticks
		obslog.Debug("policy_drop", merge(logFields, map[string]any{"phase": "metadata"}))
		if breaker.tripped() {
			return nil, false
		}
		return previousKeys, true
	}
	s.stats.metadataSent.Add(1)
	return md.Keys(), true
}

// emitSnapshot builds and sends one snapshot packet, restricted to
// knownKeys.
func (s *session) emitSnapshot(breaker *dropBreaker, t0 time.Time, knownKeys map[string]struct{}, logFields map[string]any) bool {
	snap := snapshot.BuildSnapshot(s.reg, t0, time.Now(), 0, knownKeys)
	dropped, transportErr := s.send(breaker, func(w io.Writer) error {
		return wire.EncodeSnapshot(w, snap.T, snap.D)
	})
	if transportErr != nil {
		obslog.Debug("transport_error", merge(logFields, map[string]any{"phase": "snapshot", "error": transportErr}))
		return false
	}
	if dropped {
		s.stats.snapshotsDropped.Add(1)
		obslog.Debug("policy_drop", merge(logFields, map[string]any{"phase": "snapshot"}))
		if breaker.tripped() {
			return false
		}
		return true
	}
	s.stats.snapshotsSent.Add(1)
	return true
}

// send attempts one bounded-blocking write. A timeout is a would-block
// drop (§4.4), not an error: the packet is simply lost and the next
// deadline is computed from the scheduled tick, never from send time.
// Any other failure is a genuine TransportError (§7) and ends the session.
func (s *session) send(breaker *dropBreaker, encode func(io.Writer) error) (dropped bool, transportErr error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeBudget)); err != nil {
		return false, err
	}
	err := encode(s.conn)
	if err == nil {
		breaker.recordSuccess()
		return false, nil
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		breaker.recordDrop()
		return true, nil
	}
	return false, err
}

func merge(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// dropBreaker wraps gobreaker to implement the consecutive-drop threshold
// in §4.4 ("a configurable consecutive-drop threshold (default:
// unbounded) may close the connection"), generalizing
// libs/resilience/circuitbreaker.go's protect-a-call pattern from an
// unreliable upstream collaborator to an unreliable client write.
type dropBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// newDropBreaker builds a breaker that trips after maxConsecutiveDrops
// consecutive would-block drops. maxConsecutiveDrops == 0 means
// unbounded: the returned breaker never trips.
func newDropBreaker(maxConsecutiveDrops int) *dropBreaker {
	if maxConsecutiveDrops <= 0 {
		return &dropBreaker{}
	}
	threshold := uint32(maxConsecutiveDrops)
	settings := gobreaker.Settings{
		Name:        "scope-session-drops",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	return &dropBreaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// recordDrop records one would-block drop as a breaker failure.
func (d *dropBreaker) recordDrop() {
	if d.cb == nil {
		return
	}
	_, _ = d.cb.Execute(func() (struct{}, error) {
		return struct{}{}, errDropped
	})
}

// recordSuccess records a successful send, resetting the consecutive
// count (gobreaker's own ConsecutiveFailures semantics).
func (d *dropBreaker) recordSuccess() {
	if d.cb == nil {
		return
	}
	_, _ = d.cb.Execute(func() (struct{}, error) {
		return struct{}{}, nil
	})
}

// tripped reports whether the breaker has opened, i.e. the consecutive-
// drop threshold has been reached and the session must close.
func (d *dropBreaker) tripped() bool {
	if d.cb == nil {
		return false
	}
	return d.cb.State() == gobreaker.StateOpen
}

var errDropped = errors.New("scope: packet dropped, socket not writable")
