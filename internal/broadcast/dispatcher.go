// File: internal/broadcast/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Background fan-out of queued messages. Each wake drains what was queued at
// that moment in FIFO order; every message is framed once and written to
// every connected peer. A peer whose write fails is dropped and does not get
// the message retried.

package broadcast

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/protocol"
)

// Peers is the set of receivers. Failing receivers must be removed by the
// implementation during the same call.
type Peers interface {
	ForEachConnected(fn func(peer string, w io.Writer) error) (ok, failed int)
}

// Dispatcher drains a Queue into Peers on a fixed interval.
type Dispatcher struct {
	queue    *Queue
	peers    Peers
	interval time.Duration
	log      zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	messages *control.Counter
	writes   *control.Counter
	failures *control.Counter
}

// NewDispatcher creates a dispatcher. interval <= 0 selects 10ms.
func NewDispatcher(q *Queue, peers Peers, interval time.Duration, opts ...Option) *Dispatcher {
	o := buildOptions(opts)
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Dispatcher{
		queue:    q,
		peers:    peers,
		interval: interval,
		log:      o.log,
		stopCh:   make(chan struct{}),
		messages: o.metrics.Counter("broadcast.messages"),
		writes:   o.metrics.Counter("broadcast.writes"),
		failures: o.metrics.Counter("broadcast.failures"),
	}
}

// Run blocks, flushing the queue every interval, until Stop is called.
func (d *Dispatcher) Run() {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	d.log.Debug().Dur("interval", d.interval).Msg("dispatcher started")
	for {
		select {
		case <-d.stopCh:
			d.log.Debug().Msg("dispatcher stopped")
			return
		case <-t.C:
			d.Flush()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Flush broadcasts the messages pending when it was called and returns how
// many were sent. Messages enqueued meanwhile wait for the next wake, and a
// Stop ends the drain before the next message.
func (d *Dispatcher) Flush() int {
	pending := d.queue.Len()
	for n := 0; n < pending; n++ {
		select {
		case <-d.stopCh:
			return n
		default:
		}
		msg, ok := d.queue.Pop()
		if !ok {
			return n
		}
		d.broadcast(msg)
	}
	return pending
}

func (d *Dispatcher) broadcast(msg string) {
	frame := protocol.EncodeFrame(protocol.OpText, true, []byte(msg))
	ok, failed := d.peers.ForEachConnected(func(_ string, w io.Writer) error {
		_, err := w.Write(frame)
		return err
	})
	d.messages.Inc()
	d.writes.Add(int64(ok))
	d.failures.Add(int64(failed))
	if failed > 0 {
		d.log.Debug().Int("delivered", ok).Int("failed", failed).Msg("broadcast had failures")
	}
}
