package feed_test

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/querylog/events"
	"github.com/momentics/querylog/fake"
	"github.com/momentics/querylog/feed"
)

type captureSubscriber struct {
	subject string
	cb      nats.MsgHandler
	err     error
}

func (c *captureSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.subject, c.cb = subject, cb
	return &nats.Subscription{Subject: subject}, nil
}

func TestSubscribeNATSForwardsBodies(t *testing.T) {
	sub := &captureSubscriber{}
	sink := &fake.Sink{Cap: 1}

	s, err := feed.SubscribeNATS(sub, "querylog.events", sink, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "querylog.events", s.Subject)
	require.NotNil(t, sub.cb)

	sub.cb(&nats.Msg{Subject: "querylog.events", Data: []byte(`{"type":"query_result"}`)})
	sub.cb(&nats.Msg{Subject: "querylog.events", Data: []byte(`{"dropped":true}`)})
	assert.Equal(t, []string{`{"type":"query_result"}`}, sink.Messages())
}

func TestSubscribeNATSError(t *testing.T) {
	_, err := feed.SubscribeNATS(&captureSubscriber{err: nats.ErrConnectionClosed}, "s", &fake.Sink{}, zerolog.Nop())
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestReadLines(t *testing.T) {
	in := `{"a":1}` + "\n\n" + "  {\"b\":2}  \n" + "not json\n" + `{"c":3}`
	sink := &fake.Sink{}

	accepted, skipped, err := feed.ReadLines(context.Background(), strings.NewReader(in), sink, 0, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, sink.Messages())
}

func TestReadLinesTooLong(t *testing.T) {
	in := "{}\n" + `{"x":"` + strings.Repeat("y", 100) + `"}` + "\n{}\n"
	sink := &fake.Sink{}
	accepted, _, err := feed.ReadLines(context.Background(), strings.NewReader(in), sink, 16, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, []string{"{}"}, sink.Messages())
}

func TestReadLinesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := feed.ReadLines(ctx, strings.NewReader("{}\n{}\n"), &fake.Sink{}, 0, zerolog.Nop())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDemoPublishesUntilCancelled(t *testing.T) {
	sink := &fake.Sink{}
	pub := events.NewPublisher(sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Demo(ctx, pub, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.Len() >= 4 }, time.Second, time.Millisecond)
	cancel()
	<-done

	msgs := sink.Messages()
	first, err := events.Decode([]byte(msgs[0]))
	require.NoError(t, err)
	assert.Equal(t, events.TypeQueryStart, first.EventType())
}
