//go:build !linux
// +build !linux

// File: reactor/poll_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub for unsupported platforms.

package reactor

import (
	"time"

	"github.com/momentics/querylog/internal/transport"
)

type pollBuf struct{}

func (p *PollSet) wait(*transport.Listener, time.Duration) (int, error) {
	return 0, transport.ErrNotSupported
}
