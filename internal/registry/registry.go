// File: internal/registry/registry.go
// Package registry
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded table of connected WebSocket peers. Membership changes take the
// registry lock; socket I/O takes the peer's own lock. When both are needed
// the registry lock is always acquired first.

package registry

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
)

var (
	// ErrFull is returned by Register when every slot is taken.
	ErrFull = errors.New("registry: no free client slot")
	// ErrNotConnected is returned by Send for a removed client.
	ErrNotConnected = errors.New("registry: client not connected")
)

// Socket is the part of a connection the registry needs. Shutdown must be
// safe to call from any goroutine and must not release the descriptor.
type Socket interface {
	io.Writer
	Shutdown()
}

// Client is a registered peer.
type Client struct {
	mu        sync.Mutex
	sock      Socket
	peer      string
	connected bool
	slot      int
}

// Peer returns the peer address.
func (c *Client) Peer() string { return c.peer }

// Connected reports whether the client is still registered.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// disconnectLocked requires c.mu.
func (c *Client) disconnectLocked() {
	if c.connected {
		c.connected = false
		c.sock.Shutdown()
	}
}

// Registry is a fixed-capacity client table.
type Registry struct {
	mu    sync.Mutex
	slots []*Client
	n     int
	log   zerolog.Logger

	registered *control.Counter
	removed    *control.Counter
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMetrics counts registrations and removals in mr.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(r *Registry) {
		r.registered = mr.Counter("clients.registered")
		r.removed = mr.Counter("clients.removed")
	}
}

// New creates a registry with capacity slots.
func New(capacity int, opts ...Option) *Registry {
	if capacity <= 0 {
		capacity = 32
	}
	r := &Registry{
		slots: make([]*Client, capacity),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register places sock in the first free slot.
func (r *Registry) Register(sock Socket, peer string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.slots {
		if s != nil {
			continue
		}
		c := &Client{sock: sock, peer: peer, connected: true, slot: i}
		r.slots[i] = c
		r.n++
		r.registered.Inc()
		r.log.Debug().Str("peer", peer).Int("clients", r.n).Msg("client registered")
		return c, nil
	}
	return nil, ErrFull
}

// Deregister removes c and shuts its socket down. Safe to call repeatedly.
func (r *Registry) Deregister(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	r.removeLocked(c)
}

// removeLocked requires r.mu and c.mu.
func (r *Registry) removeLocked(c *Client) {
	c.disconnectLocked()
	if c.slot >= 0 && c.slot < len(r.slots) && r.slots[c.slot] == c {
		r.slots[c.slot] = nil
		r.n--
		c.slot = -1
		r.removed.Inc()
		r.log.Debug().Str("peer", c.peer).Int("clients", r.n).Msg("client removed")
	}
}

// ForEachConnected calls fn for every connected client while holding the
// registry lock and that client's lock. A client whose callback fails is
// removed in the same pass. It returns the number of successful and failed
// callbacks.
func (r *Registry) ForEachConnected(fn func(peer string, w io.Writer) error) (ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.slots {
		if c == nil {
			continue
		}
		c.mu.Lock()
		if c.connected {
			if err := fn(c.peer, c.sock); err != nil {
				r.log.Debug().Err(err).Str("peer", c.peer).Msg("write failed, dropping client")
				r.removeLocked(c)
				failed++
			} else {
				ok++
			}
		}
		c.mu.Unlock()
	}
	return ok, failed
}

// Send writes p to c under c's lock.
func (r *Registry) Send(c *Client, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	_, err := c.sock.Write(p)
	return err
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the slot count.
func (r *Registry) Cap() int { return len(r.slots) }

// Peers returns the addresses of all registered clients in slot order.
func (r *Registry) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.n)
	for _, c := range r.slots {
		if c != nil {
			out = append(out, c.peer)
		}
	}
	return out
}

// CloseAll removes every client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.slots {
		if c == nil {
			continue
		}
		c.mu.Lock()
		r.removeLocked(c)
		c.mu.Unlock()
	}
}
