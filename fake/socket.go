// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for sockets and message sinks.

package fake

import (
	"bytes"
	"errors"
	"sync"
)

// ErrSocketClosed is returned by Write after Shutdown.
var ErrSocketClosed = errors.New("fake socket is shut down")

// Socket is an in-memory stand-in for a connected peer socket.
type Socket struct {
	mu        sync.Mutex
	written   bytes.Buffer
	writes    int
	shutdowns int
	writeErr  error
	failAfter int // writes allowed before writeErr applies; <0 means never fail
}

// NewSocket returns a healthy socket.
func NewSocket() *Socket {
	return &Socket{failAfter: -1}
}

// Write records p unless a write error has been configured or the socket was shut down.
func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdowns > 0 {
		return 0, ErrSocketClosed
	}
	if s.writeErr != nil && s.failAfter >= 0 && s.writes >= s.failAfter {
		return 0, s.writeErr
	}
	s.writes++
	return s.written.Write(p)
}

// Shutdown marks the socket closed.
func (s *Socket) Shutdown() {
	s.mu.Lock()
	s.shutdowns++
	s.mu.Unlock()
}

// SetWriteError makes every following Write fail with err.
func (s *Socket) SetWriteError(err error) {
	s.FailAfter(0, err)
}

// FailAfter lets n more writes succeed, then fails with err.
func (s *Socket) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
	s.failAfter = s.writes + n
}

// Bytes returns a copy of everything written so far.
func (s *Socket) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written.Bytes()...)
}

// Writes returns the number of successful writes.
func (s *Socket) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// IsShutdown reports whether Shutdown was called at least once.
func (s *Socket) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns > 0
}
