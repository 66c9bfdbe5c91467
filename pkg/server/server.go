// Package server implements the gorelay chat server: the connection acceptor,
// per-connection sessions and the registry of connected users.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Provider and will Close() it on shutdown.
type Dependencies struct {
	Provider auth.Provider
	Logger   *slog.Logger     // default slog.Default()
	Now      func() time.Time // clock for chat timestamps, default time.Now
}

// Server is the main gorelay server.
type Server struct {
	cfg      Config
	provider auth.Provider
	registry *Registry
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	ln          net.Listener
	wsServer    *http.Server
	wsAddr      net.Addr
	metricsAddr net.Addr

	mu    sync.Mutex
	conns map[string]protocol.Conn // connection id -> transport, for shutdown
	wg    sync.WaitGroup

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry(logger)
	return &Server{
		cfg:      cfg,
		provider: deps.Provider,
		registry: registry,
		metrics:  NewMetrics(registry.Len),
		logger:   logger,
		now:      now,
		conns:    make(map[string]protocol.Conn),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the TCP listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// WebSocketAddr returns the WebSocket listen address, or nil if disabled.
func (s *Server) WebSocketAddr() net.Addr { return s.wsAddr }

// MetricsAddr returns the metrics HTTP listen address, or nil if disabled.
func (s *Server) MetricsAddr() net.Addr { return s.metricsAddr }

// Done is closed when Shutdown has finished.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Start opens the listeners and returns. The server shuts itself down when
// ctx is cancelled or an administrator issues /shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.provider == nil {
		return fmt.Errorf("server: missing provider dependency")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln

	if err := s.startWebSocket(); err != nil {
		_ = ln.Close()
		return err
	}
	if err := s.StartMetricsHTTP(s.ctx); err != nil {
		_ = ln.Close()
		if s.wsServer != nil {
			_ = s.wsServer.Close()
		}
		return fmt.Errorf("server: listen metrics: %w", err)
	}
	if s.cfg.MetricsLog > 0 {
		s.metrics.StartPeriodicLog(s.logger, s.cfg.MetricsLog, s.ctx.Done())
	}

	go s.acceptLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down", "reason", ctx.Err())
		case <-s.registry.Done():
			s.logger.Info("shutting down", "reason", "shutdown command")
		case <-s.ctx.Done():
		}
		s.Shutdown()
	}()

	s.logger.Info("gorelay server running", "addr", ln.Addr().String(), "backend", s.cfg.Auth.Backend)
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		s.serveConn(protocol.NewStreamConn(conn, s.cfg.IdleTimeout, s.cfg.WriteTimeout))
	}
}

// serveConn runs one session on its own goroutine.
func (s *Server) serveConn(conn protocol.Conn) {
	session := NewSession(conn, SessionDeps{
		Registry:     s.registry,
		Provider:     s.provider,
		Metrics:      s.metrics,
		Logger:       s.logger,
		Now:          s.now,
		MessageRate:  s.cfg.Limits.MessageRate,
		MessageBurst: s.cfg.Limits.MessageBurst,
	})
	if !s.track(session.ID(), conn) {
		_ = conn.Close()
		return
	}

	s.metrics.TotalConnections.Inc()
	s.metrics.ActiveConnections.Inc()
	s.logger.Debug("new connection", "conn", session.ID(), "remote", conn.RemoteAddr())

	go func() {
		defer s.wg.Done()
		defer s.untrack(session.ID())
		defer s.metrics.ActiveConnections.Dec()
		defer s.metrics.Disconnects.Inc()
		session.Serve(s.ctx)
	}()
}

// track records an open transport. It refuses once shutdown has begun.
func (s *Server) track(id string, conn protocol.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Shutdown gracefully stops the server: connected users are told, every
// transport is closed (authenticated or not), sessions are drained and the
// provider is closed. Safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.registry.Shutdown()

		s.mu.Lock()
		s.cancel()
		conns := make([]protocol.Conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		if s.ln != nil {
			_ = s.ln.Close()
		}
		if s.wsServer != nil {
			_ = s.wsServer.Close()
		}
		for _, c := range conns {
			_ = c.Close()
		}

		s.wg.Wait()
		if s.provider != nil {
			if err := s.provider.Close(); err != nil {
				s.logger.Error("close provider", "err", err)
			}
		}
		s.logger.Info("server stopped")
		close(s.done)
	})
}
