// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
//
// Loop drives one listening port: Listen binds it, Serve multiplexes the
// listener and the slot table until Stop, Close tears everything down.
// Descriptors are closed only on the Serve goroutine (or by Close when
// Serve never ran).

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/internal/transport"
)

// Loop is a poll-based multiplexer for a single subsystem.
type Loop struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	state   atomic.Int32
	running atomic.Bool
	conns   atomic.Int32

	ln   *transport.Listener
	set  *PollSet
	port atomic.Int32

	done         chan struct{}
	teardownOnce sync.Once
}

// New creates an unbound loop.
func New(cfg Config, h Handler, log zerolog.Logger) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		cfg:     cfg,
		handler: h,
		log:     log,
		set:     NewPollSet(cfg.MaxConns),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Port returns the bound port, or 0 before Listen succeeded.
func (l *Loop) Port() int { return int(l.port.Load()) }

// Conns returns the number of occupied slots.
func (l *Loop) Conns() int { return int(l.conns.Load()) }

// Done is closed once the loop released all of its descriptors.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Listen creates, binds and listens on the configured address. On failure the
// loop moves to Stopped and the error is returned.
func (l *Loop) Listen() error {
	if !l.state.CompareAndSwap(int32(Unbound), int32(Listening)) {
		return ErrNotUnbound
	}
	ln, err := transport.Listen(transport.Options{
		Address:   l.cfg.Address,
		Port:      l.cfg.Port,
		Backlog:   l.cfg.Backlog,
		IOTimeout: l.cfg.IOTimeout,
	})
	if err != nil {
		l.state.Store(int32(Stopped))
		l.teardown()
		l.log.Error().Err(err).Int("port", l.cfg.Port).Msg("listen failed")
		return fmt.Errorf("%s listen: %w", l.cfg.Name, err)
	}
	l.ln = ln
	l.port.Store(int32(ln.Port()))
	l.running.Store(true)
	l.log.Info().Str("address", l.cfg.Address).Int("port", ln.Port()).Int("slots", l.set.Cap()).Msg("listening")
	return nil
}

// Serve runs the multiplexer until Stop is called or polling fails. All
// connections and the listener are released before it returns.
func (l *Loop) Serve() error {
	if !l.state.CompareAndSwap(int32(Listening), int32(Serving)) {
		return ErrNotListening
	}
	return l.run()
}

// Start moves a listening loop to Serving and runs it on its own goroutine.
// Poll failures are logged and end the loop; Done reports when it is gone.
func (l *Loop) Start() error {
	if !l.state.CompareAndSwap(int32(Listening), int32(Serving)) {
		return ErrNotListening
	}
	go l.run()
	return nil
}

func (l *Loop) run() error {
	defer l.teardown()

	for l.running.Load() {
		l.prune()

		n, err := l.set.wait(l.ln, l.cfg.PollTimeout)
		if err != nil {
			l.log.Error().Err(err).Msg("poll failed, stopping")
			return err
		}
		if n == 0 {
			continue
		}
		if l.set.listenerReady {
			l.acceptPending()
		}
		for i := range l.set.slots {
			switch l.set.ready[i] {
			case evRead:
				c := l.set.At(i)
				if err := l.handler.Serve(c); err != nil {
					if !errors.Is(err, ErrDone) {
						l.log.Debug().Err(err).Str("peer", c.PeerAddr()).Msg("connection closed")
					}
					l.release(i)
				}
			case evInvalid:
				l.release(i)
			}
		}
	}
	return nil
}

// Stop asks Serve to return after the current iteration.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// Close stops the loop and waits until every descriptor was released.
func (l *Loop) Close() error {
	l.Stop()
	if l.state.CompareAndSwap(int32(Listening), int32(Stopped)) ||
		l.state.CompareAndSwap(int32(Unbound), int32(Stopped)) {
		l.teardown()
	}
	<-l.done
	return nil
}

func (l *Loop) acceptPending() {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrAgain) {
				l.log.Warn().Err(err).Msg("accept failed")
			}
			return
		}
		if _, ok := l.set.Insert(c); !ok {
			l.log.Debug().Str("peer", c.PeerAddr()).Msg("connection table full, rejecting")
			l.handler.Reject(c)
			c.Release()
			continue
		}
		l.conns.Add(1)
		l.log.Debug().Str("peer", c.PeerAddr()).Msg("connection accepted")
		l.handler.Accept(c)
	}
}

// prune releases slots whose connection was shut down by another goroutine.
func (l *Loop) prune() {
	for i, c := range l.set.slots {
		if c != nil && c.Closed() {
			l.release(i)
		}
	}
}

func (l *Loop) release(i int) {
	c := l.set.Remove(i)
	if c == nil {
		return
	}
	l.handler.Release(c)
	c.Release()
	l.conns.Add(-1)
}

func (l *Loop) teardown() {
	l.teardownOnce.Do(func() {
		for i := range l.set.slots {
			l.release(i)
		}
		if l.ln != nil {
			l.ln.Close()
		}
		l.state.Store(int32(Stopped))
		l.log.Info().Msg("stopped")
		close(l.done)
	})
}
