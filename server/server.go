// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server lifecycle: New wires the registry, queue, dispatcher and both
// subsystem loops; Start binds and runs them; Stop joins everything.

package server

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/internal/broadcast"
	"github.com/momentics/querylog/internal/logging"
	"github.com/momentics/querylog/internal/registry"
	"github.com/momentics/querylog/protocol"
	"github.com/momentics/querylog/reactor"
	"github.com/momentics/querylog/ui"
)

var (
	ErrAlreadyRunning = errors.New("server: already started")
	ErrStopped        = errors.New("server: stopped")
)

// New creates a server for cfg. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	s := &Server{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = control.NewMetricsRegistry()
	}
	if s.probes == nil {
		s.probes = control.NewDebugProbes()
	}
	if s.resources == nil {
		res, err := ui.Resources()
		if err != nil {
			return nil, err
		}
		s.resources = res
	}

	s.registry = registry.New(cfg.MaxClients,
		registry.WithLogger(logging.For(s.log, "registry")),
		registry.WithMetrics(s.metrics))
	s.queue = broadcast.NewQueue(cfg.MaxQueuedMessages, cfg.MaxMessageSize,
		broadcast.WithLogger(logging.For(s.log, "queue")),
		broadcast.WithMetrics(s.metrics))
	s.dispatcher = broadcast.NewDispatcher(s.queue, s.registry, cfg.DispatchInterval,
		broadcast.WithLogger(logging.For(s.log, "dispatcher")),
		broadcast.WithMetrics(s.metrics))

	httpLog := logging.For(s.log, "http")
	s.httpLoop = reactor.New(s.loopConfig("http", cfg.HTTPPort),
		newHTTPHandler(cfg, s.resources, s.metrics, httpLog), httpLog)
	wsLog := logging.For(s.log, "ws")
	s.wsLoop = reactor.New(s.loopConfig("ws", cfg.WSPort),
		newWSHandler(cfg, s.registry, s.metrics, wsLog), wsLog)

	s.probes.RegisterProbe("clients", func() any { return s.registry.Len() })
	s.probes.RegisterProbe("queue.pending", func() any { return s.queue.Len() })
	s.probes.RegisterProbe("http.state", func() any { return s.httpLoop.State().String() })
	s.probes.RegisterProbe("ws.state", func() any { return s.wsLoop.State().String() })
	return s, nil
}

func (s *Server) loopConfig(name string, port int) reactor.Config {
	return reactor.Config{
		Name:        name,
		Address:     s.cfg.BindAddress,
		Port:        port,
		Backlog:     s.cfg.Backlog,
		MaxConns:    s.cfg.MaxConnections,
		PollTimeout: s.cfg.PollTimeout,
		IOTimeout:   s.cfg.IOTimeout,
	}
}

// Start binds both subsystems and runs them with the dispatcher in the
// background. A subsystem that fails to bind is logged and stays stopped
// while the other one runs; Start fails only when neither could bind.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyRunning
	}

	var errs []error
	for _, l := range []*reactor.Loop{s.httpLoop, s.wsLoop} {
		if err := l.Listen(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 2 {
		return errors.Join(errs...)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run()
	}()
	s.started = true
	s.log.Info().
		Int("http_port", s.httpLoop.Port()).
		Int("ws_port", s.wsLoop.Port()).
		Int("max_clients", s.registry.Cap()).
		Msg("server started")
	return nil
}

// Stop says goodbye to every client, stops the loops and the dispatcher and
// waits for them, bounded by ShutdownTimeout. Pending messages are dropped.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	bye := protocol.EncodeClose(protocol.CloseGoingAway, "")
	s.registry.ForEachConnected(func(_ string, w io.Writer) error {
		_, err := w.Write(bye)
		return err
	})

	s.dispatcher.Stop()
	s.httpLoop.Stop()
	s.wsLoop.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.httpLoop.Close()
		s.wsLoop.Close()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		err = fmt.Errorf("server: shutdown timed out after %s", s.cfg.ShutdownTimeout)
	}
	s.registry.CloseAll()
	if n := s.queue.Clear(); n > 0 {
		s.log.Debug().Int("dropped", n).Msg("pending messages discarded")
	}
	s.log.Info().Msg("server stopped")
	return err
}

// Enqueue schedules msg for broadcast and reports whether it was accepted.
func (s *Server) Enqueue(msg string) bool { return s.queue.Enqueue(msg) }

// HTTPPort returns the bound HTTP port, or 0 if it is not bound.
func (s *Server) HTTPPort() int { return s.httpLoop.Port() }

// WSPort returns the bound WebSocket port, or 0 if it is not bound.
func (s *Server) WSPort() int { return s.wsLoop.Port() }

// HTTPState returns the HTTP loop state.
func (s *Server) HTTPState() reactor.State { return s.httpLoop.State() }

// WSState returns the WebSocket loop state.
func (s *Server) WSState() reactor.State { return s.wsLoop.State() }

// Clients returns the number of registered WebSocket peers.
func (s *Server) Clients() int { return s.registry.Len() }

// Pending returns the number of queued messages.
func (s *Server) Pending() int { return s.queue.Len() }

// Metrics returns the server metrics registry.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

// Probes returns the server debug probes.
func (s *Server) Probes() *control.DebugProbes { return s.probes }
