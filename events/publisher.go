// File: events/publisher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package events

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink accepts encoded messages without blocking.
type Sink interface {
	Enqueue(msg string) bool
}

// Publisher stamps, encodes and forwards events to a Sink.
type Publisher struct {
	sink    Sink
	log     zerolog.Logger
	now     func() time.Time
	queryID atomic.Int64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// WithLogger sets the publisher logger.
func WithLogger(log zerolog.Logger) PublisherOption {
	return func(p *Publisher) { p.log = log }
}

// NewPublisher creates a publisher writing to sink.
func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes e and enqueues it. It reports whether the sink took it.
func (p *Publisher) Publish(e Event) bool {
	msg, err := Encode(e)
	if err != nil {
		p.log.Warn().Err(err).Msg("event dropped")
		return false
	}
	return p.sink.Enqueue(msg)
}

// QueryStart publishes a query_start event under a fresh query id and
// returns that id.
func (p *Publisher) QueryStart(user, database, query string, rows int64) (int64, bool) {
	id := p.queryID.Add(1)
	ok := p.Publish(&QueryStart{
		User:     user,
		Query:    query,
		Time:     p.now().UnixMilli(),
		Rows:     rows,
		QueryID:  id,
		Database: database,
	})
	return id, ok
}

// QueryError publishes a query_error event for id.
func (p *Publisher) QueryError(id int64, code int, message string) bool {
	return p.Publish(&QueryError{
		QueryID:      id,
		Time:         p.now().UnixMilli(),
		ErrorCode:    code,
		ErrorMessage: message,
	})
}

// QueryResult publishes a query_result event for id.
func (p *Publisher) QueryResult(id, rows int64) bool {
	return p.Publish(&QueryResult{
		QueryID: id,
		Time:    p.now().UnixMilli(),
		Rows:    rows,
	})
}
