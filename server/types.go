// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration and the Server aggregate.

package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/internal/broadcast"
	"github.com/momentics/querylog/internal/registry"
	"github.com/momentics/querylog/reactor"
	"github.com/momentics/querylog/ui"
)

// Config holds all server-side configuration parameters.
type Config struct {
	BindAddress       string        // IPv4 literal; empty binds all interfaces
	HTTPPort          int           // static resource port
	WSPort            int           // WebSocket port
	MaxConnections    int           // slot table size per subsystem
	MaxClients        int           // registered WebSocket peers
	MaxQueuedMessages int           // pending broadcast messages
	MaxMessageSize    int           // largest broadcast message in bytes
	MaxHeaderBytes    int           // request header buffer
	PollTimeout       time.Duration // poll(2) wait per loop iteration
	DispatchInterval  time.Duration // broadcast wake interval
	IOTimeout         time.Duration // SO_RCVTIMEO/SO_SNDTIMEO on accepted sockets
	Backlog           int           // listen(2) backlog
	ShutdownTimeout   time.Duration // bound on Stop
}

// DefaultHTTPPort is the default static resource port. The WebSocket port
// defaults to the next one.
const DefaultHTTPPort = 13306

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		HTTPPort:          DefaultHTTPPort,
		WSPort:            DefaultHTTPPort + 1,
		MaxConnections:    64,
		MaxClients:        32,
		MaxQueuedMessages: 1024,
		MaxMessageSize:    64 * 1024,
		MaxHeaderBytes:    8 * 1024,
		PollTimeout:       10 * time.Millisecond,
		DispatchInterval:  10 * time.Millisecond,
		IOTimeout:         5 * time.Second,
		Backlog:           16,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.HTTPPort < 0 || c.HTTPPort > 65535:
		return fmt.Errorf("http port %d out of range", c.HTTPPort)
	case c.WSPort < 0 || c.WSPort > 65535:
		return fmt.Errorf("websocket port %d out of range", c.WSPort)
	case c.HTTPPort != 0 && c.HTTPPort == c.WSPort:
		return fmt.Errorf("http and websocket ports are both %d", c.HTTPPort)
	case c.MaxConnections <= 0:
		return errors.New("max connections must be positive")
	case c.MaxClients <= 0:
		return errors.New("max clients must be positive")
	case c.MaxQueuedMessages <= 0:
		return errors.New("max queued messages must be positive")
	case c.MaxHeaderBytes < 64:
		return errors.New("max header bytes must be at least 64")
	}
	return nil
}

// Server owns the registry, the broadcast queue and dispatcher, and the
// HTTP and WebSocket loops.
type Server struct {
	cfg       *Config
	log       zerolog.Logger
	metrics   *control.MetricsRegistry
	probes    *control.DebugProbes
	resources []ui.Resource

	registry   *registry.Registry
	queue      *broadcast.Queue
	dispatcher *broadcast.Dispatcher
	httpLoop   *reactor.Loop
	wsLoop     *reactor.Loop

	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
	stopped bool
}
