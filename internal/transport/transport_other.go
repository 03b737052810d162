//go:build !linux
// +build !linux

// File: internal/transport/transport_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms without a socket backend. Every call fails with
// ErrNotSupported.

package transport

import "time"

// Listen always fails with ErrNotSupported.
func Listen(Options) (*Listener, error) { return nil, ErrNotSupported }

func (l *Listener) Accept() (*Conn, error) { return nil, ErrNotSupported }
func (l *Listener) Close() error           { return nil }

func (c *Conn) SetTimeout(time.Duration) error { return ErrNotSupported }
func (c *Conn) Read([]byte) (int, error)       { return 0, ErrNotSupported }
func (c *Conn) Write([]byte) (int, error)      { return 0, ErrNotSupported }
func (c *Conn) Shutdown()                      { c.shut.Store(true) }
func (c *Conn) Release() error {
	c.Shutdown()
	c.released.Store(true)
	return nil
}
