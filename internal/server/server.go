// Package server implements the connection server (component E): a
// single TCP listener that accepts connections and drives each through
// the Accepted -> AwaitSettings -> Streaming state machine of §4.4, one
// goroutine per connection, with no coordination between connections.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/roboplc/metrics-exporter-scope/internal/config"
	"github.com/roboplc/metrics-exporter-scope/internal/obslog"
	"github.com/roboplc/metrics-exporter-scope/libs/scope"
)

// Server owns the listener and spawns one sampler goroutine per accepted
// connection, mirroring cmd/trader/main.go's "one goroutine per
// independent long-running duty" idiom, applied per-connection instead of
// per-subsystem.
type Server struct {
	cfg   config.Config
	reg   *scope.Registry
	ln    net.Listener
	wg    sync.WaitGroup
	stats Stats
}

// New builds a Server over reg using cfg. It does not bind a listener
// yet; call Serve for that.
func New(cfg config.Config, reg *scope.Registry) *Server {
	return &Server{cfg: cfg, reg: reg}
}

// Stats returns a point-in-time copy of the server's self-observability
// counters (SPEC_FULL §9.3).
func (s *Server) Stats() StatsSnapshot { return s.stats.snapshot() }

// Serve binds the listener and accepts connections until ctx is
// cancelled. A bind failure is a BindError (§7), returned to the caller
// so the process can exit non-zero; it is the one error this package
// surfaces outside of logging.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.cfg.BindAddr, err)
	}
	s.ln = ln
	obslog.Info("listening", map[string]any{"addr": s.cfg.BindAddr})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			obslog.Error("accept_failed", map[string]any{"error": err})
			continue
		}
		s.wg.Add(1)
		s.stats.sessionsActive.Add(1)
		s.stats.sessionsTotal.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.stats.sessionsActive.Add(-1)
			newSession(conn, s.cfg, s.reg, &s.stats).run(ctx)
		}()
	}

	s.wg.Wait()
	return nil
}

// Close stops the listener, unblocking Serve's Accept loop. Sessions
// already in flight are left to observe ctx cancellation on their own;
// Serve's caller is expected to cancel the context that was passed to
// Serve for a full graceful shutdown, this only covers the listener.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
