// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket backend over golang.org/x/sys/unix.

package transport

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Listen opens an IPv4 stream socket with SO_REUSEADDR, binds it and starts
// listening. The returned listener is non-blocking.
func Listen(opts Options) (*Listener, error) {
	var addr [4]byte
	if opts.Address != "" {
		ip := net.ParseIP(opts.Address).To4()
		if ip == nil {
			return nil, fmt.Errorf("%q: %w", opts.Address, ErrBadAddress)
		}
		copy(addr[:], ip)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	fail := func(op string, err error) (*Listener, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: opts.Port, Addr: addr}); err != nil {
		return fail("bind "+net.JoinHostPort(net.IP(addr[:]).String(), strconv.Itoa(opts.Port)), err)
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	port := opts.Port
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		port = in4.Port
	}
	return &Listener{fd: fd, port: port, ioTimeout: opts.IOTimeout}, nil
}

// Accept takes one pending connection. It returns ErrAgain when none is
// queued. The accepted socket is blocking with the listener's I/O timeout.
func (l *Listener) Accept() (*Conn, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	var (
		nfd int
		sa  unix.Sockaddr
		err error
	)
	for {
		nfd, sa, err = unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ECONNABORTED {
			return nil, ErrAgain
		}
		return nil, fmt.Errorf("accept: %w", err)
	}

	c := &Conn{fd: nfd, peer: sockaddrString(sa)}
	if err := unix.SetNonblock(nfd, false); err != nil {
		c.Release()
		return nil, fmt.Errorf("set blocking: %w", err)
	}
	if err := c.SetTimeout(l.ioTimeout); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

// Close closes the listening descriptor once.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Shutdown(l.fd, unix.SHUT_RDWR)
	return unix.Close(l.fd)
}

// SetTimeout applies d as both SO_RCVTIMEO and SO_SNDTIMEO. Zero disables.
func (c *Conn) SetTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("setsockopt SO_RCVTIMEO: %w", err)
	}
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		return fmt.Errorf("setsockopt SO_SNDTIMEO: %w", err)
	}
	return nil
}

// Read implements io.Reader. An orderly shutdown by the peer yields io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if c.released.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrTimeout
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write implements io.Writer and loops until p is fully sent.
func (c *Conn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if c.shut.Load() {
			return written, ErrClosed
		}
		n, err := unix.SendmsgN(c.fd, p[written:], nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return written, ErrTimeout
		case err != nil:
			return written, fmt.Errorf("write: %w", err)
		}
		written += n
	}
	return written, nil
}

// Shutdown disables both directions of the connection and marks it closed.
// It is safe from any goroutine and does not release the descriptor.
func (c *Conn) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdownLocked()
}

func (c *Conn) shutdownLocked() {
	if c.shut.CompareAndSwap(false, true) && !c.released.Load() {
		unix.Shutdown(c.fd, unix.SHUT_RDWR)
	}
}

// Release shuts the connection down and closes its descriptor once.
func (c *Conn) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdownLocked()
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}
