// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/ui"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the root logger; components derive tagged children.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics records server counters in mr.
func WithMetrics(mr *control.MetricsRegistry) ServerOption {
	return func(s *Server) {
		s.metrics = mr
	}
}

// WithProbes registers the server's debug probes in dp.
func WithProbes(dp *control.DebugProbes) ServerOption {
	return func(s *Server) {
		s.probes = dp
	}
}

// WithResources replaces the embedded UI with res.
func WithResources(res []ui.Resource) ServerOption {
	return func(s *Server) {
		s.resources = res
	}
}
