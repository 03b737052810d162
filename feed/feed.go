// File: feed/feed.go
// Package feed
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event sources that push JSON messages into the broadcast queue: a NATS
// subject, newline-delimited JSON from a reader, and a synthetic demo feed.

package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/momentics/querylog/events"
)

// Sink accepts messages without blocking.
type Sink interface {
	Enqueue(msg string) bool
}

// Subscriber is the part of *nats.Conn used by SubscribeNATS.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// ConnectNATS dials url and keeps reconnecting for the life of the process.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("querylog"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// SubscribeNATS forwards every message body on subject to sink.
func SubscribeNATS(conn Subscriber, subject string, sink Sink, log zerolog.Logger) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		if !sink.Enqueue(string(msg.Data)) {
			log.Debug().Str("subject", msg.Subject).Msg("message dropped")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	log.Info().Str("subject", subject).Msg("subscribed")
	return sub, nil
}

// ReadLines forwards each non-blank line of r to sink until r is exhausted
// or ctx is cancelled. Lines that are not valid JSON are skipped, and a line
// longer than maxLine bytes ends the read with bufio.ErrTooLong. It returns
// the number of accepted and skipped lines.
func ReadLines(ctx context.Context, r io.Reader, sink Sink, maxLine int, log zerolog.Logger) (accepted, skipped int, err error) {
	if maxLine <= 0 {
		maxLine = 64 * 1024
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	for sc.Scan() {
		if ctx.Err() != nil {
			return accepted, skipped, ctx.Err()
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			log.Warn().Int("bytes", len(line)).Msg("skipping line that is not JSON")
			skipped++
			continue
		}
		if sink.Enqueue(string(line)) {
			accepted++
		} else {
			skipped++
		}
	}
	if err := sc.Err(); err != nil {
		return accepted, skipped, fmt.Errorf("read feed: %w", err)
	}
	return accepted, skipped, nil
}

var demoQueries = []struct {
	user, database, query string
	rows                  int64
	errCode               int
	errMessage            string
}{
	{"app", "shop", "SELECT id, name FROM products WHERE price < 100", 42, 0, ""},
	{"app", "shop", "UPDATE carts SET updated_at = NOW() WHERE id = 17", 1, 0, ""},
	{"report", "analytics", "SELECT COUNT(*) FROM visits GROUP BY day", 30, 0, ""},
	{"admin", "shop", "SELEC * FROM orders", 0, 1064, "You have an error in your SQL syntax"},
	{"app", "shop", "INSERT INTO orders (cart_id) VALUES (17)", 1, 0, ""},
}

// Demo publishes a rotating set of synthetic query events every interval
// until ctx is done.
func Demo(ctx context.Context, pub *events.Publisher, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		q := demoQueries[i%len(demoQueries)]
		id, _ := pub.QueryStart(q.user, q.database, q.query, 0)
		if q.errCode != 0 {
			pub.QueryError(id, q.errCode, q.errMessage)
		} else {
			pub.QueryResult(id, q.rows)
		}
	}
}
