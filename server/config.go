// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"time"

	"github.com/momentics/querylog/control"
)

// Config file keys.
const (
	KeyHTTPPort          = "http_port"
	KeyWSPort            = "ws_port"
	KeyBindAddress       = "bind_address"
	KeyMaxConnections    = "max_connections"
	KeyMaxClients        = "max_clients"
	KeyMaxQueuedMessages = "max_queued_messages"
	KeyMaxMessageSize    = "max_message_size"
	KeyMaxHeaderBytes    = "max_header_bytes"
	KeyPollTimeout       = "poll_timeout"
	KeyDispatchInterval  = "dispatch_interval"
	KeyIOTimeout         = "io_timeout"
	KeyBacklog           = "backlog"
)

// ConfigFromStore overlays the values found in cs on a copy of base. When
// http_port is set and ws_port is not, the WebSocket port follows at
// http_port+1. All parse errors are reported together.
func ConfigFromStore(cs *control.ConfigStore, base *Config) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}
	cfg := *base
	var errs []error

	intField := func(key string, dst *int) {
		v, err := cs.Int(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}

	intField(KeyHTTPPort, &cfg.HTTPPort)
	if _, ok := cs.Get(KeyWSPort); ok {
		intField(KeyWSPort, &cfg.WSPort)
	} else if _, ok := cs.Get(KeyHTTPPort); ok && cfg.HTTPPort != 0 {
		cfg.WSPort = cfg.HTTPPort + 1
	}
	intField(KeyMaxConnections, &cfg.MaxConnections)
	intField(KeyMaxClients, &cfg.MaxClients)
	intField(KeyMaxQueuedMessages, &cfg.MaxQueuedMessages)
	intField(KeyMaxMessageSize, &cfg.MaxMessageSize)
	intField(KeyMaxHeaderBytes, &cfg.MaxHeaderBytes)
	intField(KeyBacklog, &cfg.Backlog)

	cfg.BindAddress = cs.String(KeyBindAddress, cfg.BindAddress)

	durField := func(key string, dst *time.Duration) {
		v, err := cs.Duration(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	durField(KeyPollTimeout, &cfg.PollTimeout)
	durField(KeyDispatchInterval, &cfg.DispatchInterval)
	durField(KeyIOTimeout, &cfg.IOTimeout)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
