package broadcast_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/fake"
	"github.com/momentics/querylog/internal/broadcast"
	"github.com/momentics/querylog/internal/registry"
	"github.com/momentics/querylog/protocol"
)

func readTexts(t *testing.T, raw []byte) []string {
	t.Helper()
	var out []string
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		f, err := protocol.DecodeFrame(r, true)
		require.NoError(t, err)
		require.Equal(t, protocol.OpText, f.Opcode)
		out = append(out, string(f.Payload))
	}
	return out
}

func TestQueueFIFOAndBackPressure(t *testing.T) {
	mr := control.NewMetricsRegistry()
	q := broadcast.NewQueue(2, 0, broadcast.WithMetrics(mr))

	assert.True(t, q.Enqueue("a"))
	assert.True(t, q.Enqueue("b"))
	assert.False(t, q.Enqueue("c"))
	assert.Equal(t, 2, q.Len())

	msg, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", msg)
	assert.True(t, q.Enqueue("d"))

	msg, _ = q.Pop()
	assert.Equal(t, "b", msg)
	msg, _ = q.Pop()
	assert.Equal(t, "d", msg)
	_, ok = q.Pop()
	assert.False(t, ok)

	snap := mr.GetSnapshot()
	assert.Equal(t, int64(3), snap["queue.enqueued"])
	assert.Equal(t, int64(1), snap["queue.dropped"])
}

func TestQueueRejectsOversizedMessage(t *testing.T) {
	q := broadcast.NewQueue(8, 4)
	assert.True(t, q.Enqueue("1234"))
	assert.False(t, q.Enqueue("12345"))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 8, q.Cap())
	assert.Equal(t, 1, q.Clear())
	assert.Zero(t, q.Len())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := broadcast.NewQueue(100, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if q.Enqueue("m") {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, accepted)
	assert.Equal(t, 100, q.Len())
}

func TestDispatcherFanOutAndFailingPeer(t *testing.T) {
	mr := control.NewMetricsRegistry()
	reg := registry.New(4)
	a, b, broken := fake.NewSocket(), fake.NewSocket(), fake.NewSocket()
	broken.FailAfter(1, errors.New("broken pipe"))
	for _, s := range []*fake.Socket{a, broken, b} {
		_, err := reg.Register(s, "p")
		require.NoError(t, err)
	}

	q := broadcast.NewQueue(16, 0)
	d := broadcast.NewDispatcher(q, reg, time.Millisecond, broadcast.WithMetrics(mr))

	q.Enqueue(`{"n":1}`)
	q.Enqueue(`{"n":2}`)
	q.Enqueue(`{"n":3}`)
	assert.Equal(t, 3, d.Flush())
	assert.Zero(t, q.Len())

	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	assert.Equal(t, want, readTexts(t, a.Bytes()))
	assert.Equal(t, want, readTexts(t, b.Bytes()))
	assert.Equal(t, want[:1], readTexts(t, broken.Bytes()))
	assert.True(t, broken.IsShutdown())
	assert.Equal(t, 2, reg.Len())

	snap := mr.GetSnapshot()
	assert.Equal(t, int64(3), snap["broadcast.messages"])
	assert.Equal(t, int64(7), snap["broadcast.writes"])
	assert.Equal(t, int64(1), snap["broadcast.failures"])
}

func TestDispatcherLateJoinerMissesEarlierMessages(t *testing.T) {
	reg := registry.New(2)
	early := fake.NewSocket()
	_, err := reg.Register(early, "early")
	require.NoError(t, err)

	q := broadcast.NewQueue(4, 0)
	d := broadcast.NewDispatcher(q, reg, 0)
	q.Enqueue("first")
	d.Flush()

	late := fake.NewSocket()
	_, err = reg.Register(late, "late")
	require.NoError(t, err)
	q.Enqueue("second")
	d.Flush()

	assert.Equal(t, []string{"first", "second"}, readTexts(t, early.Bytes()))
	assert.Equal(t, []string{"second"}, readTexts(t, late.Bytes()))
}

func TestDispatcherRunUntilStop(t *testing.T) {
	reg := registry.New(1)
	s := fake.NewSocket()
	_, err := reg.Register(s, "p")
	require.NoError(t, err)

	q := broadcast.NewQueue(4, 0)
	d := broadcast.NewDispatcher(q, reg, 2*time.Millisecond)
	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	q.Enqueue(strings.Repeat("x", 200))
	require.Eventually(t, func() bool { return s.Writes() == 1 }, time.Second, time.Millisecond)

	d.Stop()
	d.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

// slowPeers accepts every broadcast after a fixed delay.
type slowPeers struct {
	delay time.Duration
	calls atomic.Int64
}

func (p *slowPeers) ForEachConnected(func(peer string, w io.Writer) error) (ok, failed int) {
	time.Sleep(p.delay)
	p.calls.Add(1)
	return 1, 0
}

func TestFlushDrainsOnlyWhatWasPending(t *testing.T) {
	q := broadcast.NewQueue(16, 0)
	peers := &slowPeers{}
	d := broadcast.NewDispatcher(q, peers, time.Millisecond)

	q.Enqueue("a")
	q.Enqueue("b")
	assert.Equal(t, 2, d.Flush())
	assert.Zero(t, d.Flush())
	assert.Equal(t, int64(2), peers.calls.Load())
}

func TestDispatcherStopsUnderSustainedLoad(t *testing.T) {
	q := broadcast.NewQueue(10000, 0)
	peers := &slowPeers{delay: time.Millisecond}
	d := broadcast.NewDispatcher(q, peers, time.Millisecond)
	for i := 0; i < 500; i++ {
		q.Enqueue("m")
	}

	producerDone := make(chan struct{})
	defer close(producerDone)
	go func() {
		tick := time.NewTicker(200 * time.Microsecond)
		defer tick.Stop()
		for {
			select {
			case <-producerDone:
				return
			case <-tick.C:
				q.Enqueue("m")
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()
	require.Eventually(t, func() bool { return peers.calls.Load() > 0 }, time.Second, time.Millisecond)

	d.Stop()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Run kept draining after Stop, %d pending", q.Len())
	}
	assert.Positive(t, q.Len())
}
