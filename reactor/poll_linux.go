//go:build linux
// +build linux

// File: reactor/poll_linux.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) readiness wait over the listener and every occupied slot.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/querylog/internal/transport"
)

type pollBuf struct {
	fds []unix.PollFd
	idx []int // fds[k+1] belongs to slot idx[k]
}

// wait polls ln and all occupied slots for up to timeout and records which
// became ready. It returns the number of ready descriptors.
func (p *PollSet) wait(ln *transport.Listener, timeout time.Duration) (int, error) {
	p.clearReady()

	fds := append(p.buf.fds[:0], unix.PollFd{Fd: int32(ln.Fd()), Events: unix.POLLIN})
	idx := p.buf.idx[:0]
	for i, c := range p.slots {
		if c == nil {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(c.Fd()), Events: unix.POLLIN})
		idx = append(idx, i)
	}
	p.buf.fds, p.buf.idx = fds, idx

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	if fds[0].Revents&unix.POLLNVAL != 0 {
		return n, ErrListenerLost
	}
	p.listenerReady = fds[0].Revents&unix.POLLIN != 0

	for k, fd := range fds[1:] {
		switch {
		case fd.Revents&unix.POLLNVAL != 0:
			p.ready[idx[k]] = evInvalid
		case fd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0:
			p.ready[idx[k]] = evRead
		}
	}
	return n, nil
}
