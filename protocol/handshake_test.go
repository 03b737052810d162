package protocol_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/querylog/protocol"
)

const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeRequest(method, version string, headers ...string) []byte {
	var b strings.Builder
	b.WriteString(method + " /chat " + version + "\r\nHost: server.example.com\r\n")
	for _, h := range headers {
		b.WriteString(h + "\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

var validHeaders = []string{
	"Upgrade: websocket",
	"Connection: Upgrade",
	"Sec-WebSocket-Key: " + sampleKey,
	"Sec-WebSocket-Version: 13",
}

func TestComputeAcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", protocol.ComputeAcceptKey([]byte(sampleKey)))
}

func TestParseConnectRequest(t *testing.T) {
	key, err := protocol.ParseConnectRequest(upgradeRequest("GET", "HTTP/1.1", validHeaders...))
	require.NoError(t, err)
	assert.Equal(t, sampleKey, key.String())
}

func TestParseConnectRequestConnectionTokenList(t *testing.T) {
	key, err := protocol.ParseConnectRequest(upgradeRequest("GET", "HTTP/1.1",
		"upgrade: WebSocket",
		"connection: keep-alive, Upgrade",
		"sec-websocket-key: "+sampleKey,
		"sec-websocket-version: 13",
	))
	require.NoError(t, err)
	assert.Equal(t, sampleKey, key.String())
}

func TestParseConnectRequestFailures(t *testing.T) {
	cases := []struct {
		name string
		req  []byte
		want *protocol.HandshakeError
	}{
		{"garbage", []byte("hello\r\n\r\n"), protocol.ErrHandshakeRequest},
		{"bad header", upgradeRequest("GET", "HTTP/1.1", "NoColon"), protocol.ErrHandshakeRequest},
		{"method", upgradeRequest("POST", "HTTP/1.1", validHeaders...), protocol.ErrHandshakeMethod},
		{"http version", upgradeRequest("GET", "HTTP/2.0", validHeaders...), protocol.ErrHandshakeHTTPVersion},
		{"ws version", upgradeRequest("GET", "HTTP/1.1",
			"Upgrade: websocket", "Connection: Upgrade",
			"Sec-WebSocket-Key: "+sampleKey, "Sec-WebSocket-Version: 8"), protocol.ErrHandshakeWebSocketVersion},
		{"no version", upgradeRequest("GET", "HTTP/1.1",
			"Upgrade: websocket", "Connection: Upgrade",
			"Sec-WebSocket-Key: "+sampleKey), protocol.ErrHandshakeWebSocketVersion},
		{"no upgrade", upgradeRequest("GET", "HTTP/1.1",
			"Connection: keep-alive",
			"Sec-WebSocket-Key: "+sampleKey, "Sec-WebSocket-Version: 13"), protocol.ErrHandshakeNoUpgrade},
		{"upgrade to other", upgradeRequest("GET", "HTTP/1.1",
			"Upgrade: h2c", "Connection: Upgrade",
			"Sec-WebSocket-Key: "+sampleKey, "Sec-WebSocket-Version: 13"), protocol.ErrHandshakeNoUpgrade},
		{"no key", upgradeRequest("GET", "HTTP/1.1",
			"Upgrade: websocket", "Connection: Upgrade",
			"Sec-WebSocket-Version: 13"), protocol.ErrHandshakeNoKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.ParseConnectRequest(tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var he *protocol.HandshakeError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tc.want.Code, he.Code)
		})
	}
}

func TestHandshakeErrorMessages(t *testing.T) {
	assert.Equal(t, "incorrect HTTP method in handshake request",
		protocol.HandshakeErrorMessage(protocol.HandshakeBadMethod))
	assert.Equal(t, "request does not contain 'Sec-WebSocket-Key' header",
		protocol.HandshakeErrorMessage(protocol.HandshakeNoKey))
	assert.Equal(t, "unknown error", protocol.HandshakeErrorMessage(0))
	assert.Equal(t, "unknown error", protocol.HandshakeErrorMessage(7))
	assert.Contains(t, protocol.ErrHandshakeNoUpgrade.Error(), "error 5")
}

func TestWriteHandshakeAccept(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, protocol.WriteHandshakeAccept(&b, []byte(sampleKey)))
	resp := b.String()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, resp, "Upgrade: websocket\r\n")
	assert.Contains(t, resp, "Connection: Upgrade\r\n")
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteHandshakeAcceptPropagatesError(t *testing.T) {
	assert.EqualError(t, protocol.WriteHandshakeAccept(failWriter{}, []byte(sampleKey)), "broken pipe")
}
