// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent part of the socket layer: errors, options and the
// state shared by every platform implementation.

package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned for I/O on a connection that was shut down.
	ErrClosed = errors.New("transport: connection closed")
	// ErrAgain is returned by Accept when no connection is pending.
	ErrAgain = errors.New("transport: no pending connection")
	// ErrTimeout is returned when a blocking read or write hit its timeout.
	ErrTimeout = errors.New("transport: i/o timeout")
	// ErrNotSupported is returned on platforms without a socket backend.
	ErrNotSupported = errors.New("transport: platform not supported")
	// ErrBadAddress is returned for a bind address that is not IPv4.
	ErrBadAddress = errors.New("transport: bind address must be an IPv4 literal")
)

// Options controls listening and accepted sockets.
type Options struct {
	Address   string        // IPv4 literal; empty binds all interfaces
	Port      int           // 0 picks an ephemeral port
	Backlog   int           // listen(2) backlog
	IOTimeout time.Duration // SO_RCVTIMEO/SO_SNDTIMEO on accepted sockets; 0 disables
}

// Listener is a bound, listening, non-blocking stream socket.
type Listener struct {
	fd        int
	port      int
	ioTimeout time.Duration
	closed    atomic.Bool
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Port returns the bound port, resolved when 0 was requested.
func (l *Listener) Port() int { return l.port }

// Conn is an accepted stream socket.
type Conn struct {
	fd       int
	peer     string
	mu       sync.Mutex // serializes shutdown(2) against close(2)
	shut     atomic.Bool
	released atomic.Bool
}

// Fd returns the connection descriptor.
func (c *Conn) Fd() int { return c.fd }

// PeerAddr returns the remote address as host:port.
func (c *Conn) PeerAddr() string { return c.peer }

// Closed reports whether the connection was shut down or released.
func (c *Conn) Closed() bool { return c.shut.Load() }

// Close releases the connection. Only the owning loop may call it.
func (c *Conn) Close() error { return c.Release() }
