// File: internal/broadcast/queue.go
// Package broadcast
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded FIFO of outbound text messages. Producers never block: a message
// that does not fit is dropped and counted.

package broadcast

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
)

type options struct {
	log     zerolog.Logger
	metrics *control.MetricsRegistry
}

// Option configures a Queue or a Dispatcher.
type Option func(*options)

// WithLogger sets the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records counters in mr.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(o *options) { o.metrics = mr }
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Queue is a capped ring buffer of messages guarded by a mutex.
type Queue struct {
	mu      sync.Mutex
	ring    *queue.Queue
	limit   int
	maxSize int
	log     zerolog.Logger

	enqueued *control.Counter
	dropped  *control.Counter
}

// NewQueue creates a queue holding at most limit messages of at most
// maxSize bytes each. maxSize <= 0 disables the size check.
func NewQueue(limit, maxSize int, opts ...Option) *Queue {
	o := buildOptions(opts)
	if limit <= 0 {
		limit = 1024
	}
	return &Queue{
		ring:     queue.New(),
		limit:    limit,
		maxSize:  maxSize,
		log:      o.log,
		enqueued: o.metrics.Counter("queue.enqueued"),
		dropped:  o.metrics.Counter("queue.dropped"),
	}
}

// Enqueue appends msg and reports whether it was accepted.
func (q *Queue) Enqueue(msg string) bool {
	if q.maxSize > 0 && len(msg) > q.maxSize {
		q.dropped.Inc()
		q.log.Debug().Int("size", len(msg)).Int("max", q.maxSize).Msg("message too large, dropped")
		return false
	}

	q.mu.Lock()
	if q.ring.Length() >= q.limit {
		q.mu.Unlock()
		q.dropped.Inc()
		q.log.Debug().Int("pending", q.limit).Msg("queue full, message dropped")
		return false
	}
	q.ring.Add(msg)
	q.mu.Unlock()

	q.enqueued.Inc()
	return true
}

// Pop detaches the oldest message.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.Length() == 0 {
		return "", false
	}
	return q.ring.Remove().(string), true
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Length()
}

// Cap returns the pending message limit.
func (q *Queue) Cap() int { return q.limit }

// Clear drops every pending message and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.ring.Length()
	q.ring = queue.New()
	return n
}
