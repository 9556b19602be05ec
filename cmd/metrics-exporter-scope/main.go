// Command metrics-exporter-scope runs the secondary metrics exporter's
// TCP streaming server: it owns the gauge registry, the recorder facade
// producers call into, and the per-connection sampler server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roboplc/metrics-exporter-scope/internal/config"
	"github.com/roboplc/metrics-exporter-scope/internal/fallback"
	"github.com/roboplc/metrics-exporter-scope/internal/obslog"
	"github.com/roboplc/metrics-exporter-scope/internal/server"
	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

func main() {
	configFlag := flag.String("config", "", "path to JSON config file (optional, env vars take precedence)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obslog.Info("starting", map[string]any{
		"bind_addr":             cfg.BindAddr,
		"metadata_interval_ms":  cfg.MetadataInterval.Milliseconds(),
		"min_sampling_interval": cfg.MinSamplingInterval.String(),
		"handshake_timeout":     cfg.HandshakeTimeout.String(),
		"max_consecutive_drops": cfg.MaxConsecutiveDrops,
		"fallback_recorder":     cfg.FallbackRecorder,
	})

	reg := scope.NewRegistry()
	recorder := scope.NewFacade(reg, newFallback(cfg.FallbackRecorder))
	srv := server.New(cfg, reg)

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	go feedSelfStats(ctx, srv, recorder)

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := srv.Serve(ctx); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	obslog.Info("shutdown_signal_received", nil)
	ctxCancel()
	if err := srv.Close(); err != nil {
		obslog.Error("listener_close_failed", map[string]any{"error": err})
	}

	select {
	case <-serveDone:
	case <-time.After(30 * time.Second):
		obslog.Error("shutdown_timed_out", nil)
	}

	obslog.Info("stopped", nil)
}

// newFallback builds the configured fallback_recorder, or nil if none is
// configured (non-scope metrics are then dropped silently, per §4.2).
func newFallback(kind string) scope.Recorder {
	switch kind {
	case config.FallbackRecorderLog:
		return fallback.NewLogRecorder()
	default:
		return nil
	}
}

// feedSelfStats is this binary's own producer: it registers the server's
// self-observability counters (never part of the wire protocol itself,
// see internal/server.Stats) as ordinary scope gauges through the same
// Facade a host process would use, so they stream to connected clients
// like any other instrumented value. This is also what exercises the
// describe/register/set dispatch path end to end in a binary that has no
// other instrumentation of its own.
func feedSelfStats(ctx context.Context, srv *server.Server, recorder *scope.Facade) {
	sessionsActive := recorder.RegisterGauge(scope.Key{Name: "~scope_sessions_active"})
	sessionsTotal := recorder.RegisterGauge(scope.Key{Name: "~scope_sessions_total"})
	snapshotsSent := recorder.RegisterGauge(scope.Key{Name: "~scope_snapshots_sent"})
	snapshotsDropped := recorder.RegisterGauge(scope.Key{Name: "~scope_snapshots_dropped"})
	metadataSent := recorder.RegisterGauge(scope.Key{Name: "~scope_metadata_sent"})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := srv.Stats()
			sessionsActive.Set(float64(snap.SessionsActive))
			sessionsTotal.Set(float64(snap.SessionsTotal))
			snapshotsSent.Set(float64(snap.SnapshotsSent))
			snapshotsDropped.Set(float64(snap.SnapshotsDropped))
			metadataSent.Set(float64(snap.MetadataSent))
		}
	}
}
