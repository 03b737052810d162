//go:build linux

package server_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/querylog/reactor"
	"github.com/momentics/querylog/server"
	"github.com/momentics/querylog/ui"
)

func startServer(t *testing.T, mutate func(*server.Config)) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.HTTPPort, cfg.WSPort = 0, 0
	cfg.IOTimeout = time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	s, err := server.New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func addr(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func rawRequest(t *testing.T, port int, req string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr(port))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	_, err = io.WriteString(c, req)
	require.NoError(t, err)
	resp, err := io.ReadAll(c)
	require.NoError(t, err)
	return string(resp)
}

func dialWS(t *testing.T, s *server.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/", addr(s.WSPort())), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, s *server.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestStartBindsBothPorts(t *testing.T) {
	s := startServer(t, nil)
	assert.NotZero(t, s.HTTPPort())
	assert.NotZero(t, s.WSPort())
	assert.Equal(t, reactor.Serving, s.HTTPState())
	assert.Equal(t, reactor.Serving, s.WSState())
	assert.ErrorIs(t, s.Start(), server.ErrAlreadyRunning)
}

func TestHTTPServesResources(t *testing.T) {
	s := startServer(t, nil)
	res, err := ui.Resources()
	require.NoError(t, err)

	for _, r := range res {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", addr(s.HTTPPort()), r.Path))
		require.NoError(t, err, r.Path)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, r.Path)
		assert.Equal(t, r.ContentType, resp.Header.Get("Content-Type"), r.Path)
		assert.Equal(t, r.Body, body, r.Path)
	}
}

func TestHTTPHead(t *testing.T) {
	s := startServer(t, nil)
	resp, err := http.Head(fmt.Sprintf("http://%s/index.css", addr(s.HTTPPort())))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, resp.ContentLength)
}

func TestHTTPBadRequests(t *testing.T) {
	s := startServer(t, nil)
	for name, req := range map[string]string{
		"unknown path": "GET /missing HTTP/1.1\r\nHost: x\r\n\r\n",
		"bad method":   "BREW / HTTP/1.1\r\n\r\n",
		"post":         "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n",
		"http version": "GET / HTTP/2.0\r\n\r\n",
		"bad header":   "GET / HTTP/1.1\r\nnocolon\r\n\r\n",
		"no version":   "GET / HTTP/\r\n\r\n",
	} {
		resp := rawRequest(t, s.HTTPPort(), req)
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 400 "), "%s: %q", name, resp)
	}
}

func TestHTTPQueryStringIgnored(t *testing.T) {
	s := startServer(t, nil)
	resp := rawRequest(t, s.HTTPPort(), "GET /?ws_port=1 HTTP/1.0\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"), resp)
	assert.Contains(t, resp, "Connection: close\r\n")
}

func TestWebSocketBroadcast(t *testing.T) {
	s := startServer(t, nil)
	a := dialWS(t, s)
	b := dialWS(t, s)
	waitClients(t, s, 2)

	msgs := []string{`{"type":"query_start","query_id":1}`, `{"type":"query_result","query_id":1}`}
	for _, m := range msgs {
		require.True(t, s.Enqueue(m))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for _, want := range msgs {
			mt, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, websocket.TextMessage, mt)
			assert.Equal(t, want, string(data))
		}
	}
	assert.Equal(t, int64(2), s.Metrics().Counter("broadcast.messages").Load())
	assert.Equal(t, int64(4), s.Metrics().Counter("broadcast.writes").Load())
}

func TestWebSocketPingPong(t *testing.T) {
	s := startServer(t, nil)
	conn := dialWS(t, s)
	waitClients(t, s, 1)

	pongs := make(chan string, 1)
	conn.SetPongHandler(func(data string) error {
		pongs <- data
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("are you there"), time.Now().Add(time.Second)))
	select {
	case got := <-pongs:
		assert.Equal(t, "are you there", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
}

func TestWebSocketClientClose(t *testing.T) {
	s := startServer(t, nil)
	conn := dialWS(t, s)
	waitClients(t, s, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
	waitClients(t, s, 0)
}

func TestWebSocketHandshakeFailure(t *testing.T) {
	s := startServer(t, nil)
	resp, err := http.Get(fmt.Sprintf("http://%s/", addr(s.WSPort())))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int64(1), s.Metrics().Counter("ws.handshake_failed").Load())
	assert.Zero(t, s.Clients())
}

func TestWebSocketRegistryFull(t *testing.T) {
	s := startServer(t, func(c *server.Config) { c.MaxClients = 1 })
	dialWS(t, s)
	waitClients(t, s, 1)

	extra := dialWS(t, s)
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := extra.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "%v", err)
	assert.Equal(t, 1, s.Clients())
}

func TestWebSocketConnectionTableFull(t *testing.T) {
	s := startServer(t, func(c *server.Config) { c.MaxConnections = 1 })
	dialWS(t, s)
	waitClients(t, s, 1)

	c, err := net.Dial("tcp", addr(s.WSPort()))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	data, err := io.ReadAll(c)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, byte(0x88), data[0])
	assert.Equal(t, uint16(websocket.CloseTryAgainLater), uint16(data[2])<<8|uint16(data[3]))
	assert.Equal(t, int64(1), s.Metrics().Counter("ws.rejected").Load())
}

func TestStopSendsGoingAway(t *testing.T) {
	s := startServer(t, nil)
	conn := dialWS(t, s)
	waitClients(t, s, 1)
	s.Enqueue("last")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
	assert.Equal(t, reactor.Stopped, s.HTTPState())
	assert.Equal(t, reactor.Stopped, s.WSState())
	assert.Zero(t, s.Clients())
	assert.Zero(t, s.Pending())
	assert.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Start(), server.ErrStopped)
}

func TestOneSubsystemFailingLeavesTheOtherRunning(t *testing.T) {
	first := startServer(t, nil)
	second := startServer(t, func(c *server.Config) { c.HTTPPort = first.HTTPPort() })

	assert.Equal(t, reactor.Stopped, second.HTTPState())
	assert.Equal(t, reactor.Serving, second.WSState())

	cfg := server.DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.HTTPPort, cfg.WSPort = first.HTTPPort(), first.WSPort()
	third, err := server.New(cfg)
	require.NoError(t, err)
	assert.Error(t, third.Start())
	assert.NoError(t, third.Stop())
}

func TestProbes(t *testing.T) {
	s := startServer(t, nil)
	state := s.Probes().DumpState()
	assert.Equal(t, 0, state["clients"])
	assert.Equal(t, 0, state["queue.pending"])
	assert.Equal(t, "serving", state["http.state"])
	assert.Equal(t, "serving", state["ws.state"])
}
