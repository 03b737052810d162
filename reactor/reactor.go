// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Handler contract and loop lifecycle states.

package reactor

import (
	"errors"
	"time"

	"github.com/momentics/querylog/internal/transport"
)

// ErrDone is returned by Handler.Serve when the connection finished normally
// and its slot should be released.
var ErrDone = errors.New("reactor: connection done")

var (
	ErrNotUnbound   = errors.New("reactor: loop already bound")
	ErrNotListening = errors.New("reactor: loop is not listening")
	ErrListenerLost = errors.New("reactor: listening socket became invalid")
)

// Handler implements one subsystem's protocol on top of a Loop. All hooks
// run on the loop goroutine.
type Handler interface {
	// Accept is called when a new connection was placed in a slot.
	Accept(c *transport.Conn)
	// Serve is called when c is readable. A non-nil result releases the slot.
	Serve(c *transport.Conn) error
	// Reject is called for a connection that found no free slot, before it is closed.
	Reject(c *transport.Conn)
	// Release is called before a slot's connection is closed.
	Release(c *transport.Conn)
}

// State is the loop lifecycle.
type State int32

const (
	Unbound State = iota
	Listening
	Serving
	Stopped
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Listening:
		return "listening"
	case Serving:
		return "serving"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config describes one loop.
type Config struct {
	Name        string
	Address     string
	Port        int
	Backlog     int
	MaxConns    int
	PollTimeout time.Duration
	IOTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Millisecond
	}
	if c.Backlog <= 0 {
		c.Backlog = 16
	}
	return c
}
