// File: server/ws_handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket subsystem. A readable connection that is not yet registered
// carries a handshake; a registered one carries a frame. The clients map is
// only touched on the loop goroutine.

package server

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/internal/registry"
	"github.com/momentics/querylog/internal/transport"
	"github.com/momentics/querylog/protocol"
	"github.com/momentics/querylog/reactor"
)

type wsHandler struct {
	log     zerolog.Logger
	reg     *registry.Registry
	buf     []byte
	clients map[*transport.Conn]*registry.Client

	accepted        *control.Counter
	rejected        *control.Counter
	handshakeFailed *control.Counter
}

func newWSHandler(cfg *Config, reg *registry.Registry, mr *control.MetricsRegistry, log zerolog.Logger) *wsHandler {
	return &wsHandler{
		log:             log,
		reg:             reg,
		buf:             make([]byte, cfg.MaxHeaderBytes),
		clients:         make(map[*transport.Conn]*registry.Client),
		accepted:        mr.Counter("ws.accepted"),
		rejected:        mr.Counter("ws.rejected"),
		handshakeFailed: mr.Counter("ws.handshake_failed"),
	}
}

func (h *wsHandler) Accept(*transport.Conn) { h.accepted.Inc() }

// Reject tells a peer that found no free slot to come back later.
func (h *wsHandler) Reject(c *transport.Conn) {
	h.rejected.Inc()
	_ = protocol.WriteClose(c, protocol.CloseTryAgainLater, "connection table full")
}

func (h *wsHandler) Release(c *transport.Conn) {
	if cl, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.reg.Deregister(cl)
	}
}

func (h *wsHandler) Serve(c *transport.Conn) error {
	if cl, ok := h.clients[c]; ok {
		return h.serveFrame(c, cl)
	}
	return h.handshake(c)
}

func (h *wsHandler) handshake(c *transport.Conn) error {
	n, err := protocol.ReadHeaders(c, h.buf)
	if err != nil {
		return err
	}
	key, err := protocol.ParseConnectRequest(h.buf[:n])
	if err != nil {
		h.handshakeFailed.Inc()
		var he *protocol.HandshakeError
		if errors.As(err, &he) {
			h.log.Debug().Int("code", int(he.Code)).Str("peer", c.PeerAddr()).Msg(he.Message)
		}
		_ = protocol.WriteBadRequest(c)
		return reactor.ErrDone
	}
	if err := protocol.WriteHandshakeAccept(c, key); err != nil {
		return err
	}

	cl, err := h.reg.Register(c, c.PeerAddr())
	if err != nil {
		h.log.Warn().Err(err).Str("peer", c.PeerAddr()).Msg("client registry full, dropping peer")
		_ = protocol.WriteClose(c, protocol.CloseTryAgainLater, "too many clients")
		return reactor.ErrDone
	}
	h.clients[c] = cl
	h.log.Info().Str("peer", c.PeerAddr()).Msg("client connected")
	return nil
}

func (h *wsHandler) serveFrame(c *transport.Conn, cl *registry.Client) error {
	f, err := protocol.ReadFrameHeader(c)
	if err != nil {
		return err
	}
	if f.Opcode.IsControl() {
		if f.PayloadLength > protocol.MaxControlPayloadLen {
			_ = h.reg.Send(cl, protocol.EncodeClose(protocol.CloseProtocolError, "control frame too long"))
			return reactor.ErrDone
		}
		err = f.ReadPayload(c, protocol.MaxControlPayloadLen)
	} else {
		err = f.DiscardPayload(c)
	}
	if err != nil {
		return err
	}

	switch f.Opcode {
	case protocol.OpClose:
		code, reason := protocol.ParseClosePayload(f.Payload)
		h.log.Info().Str("peer", cl.Peer()).Int("code", int(code)).Str("reason", reason).Msg("client closed")
		_ = h.reg.Send(cl, protocol.EncodeFrame(protocol.OpClose, true, f.Payload))
		return reactor.ErrDone
	case protocol.OpPing:
		return h.reg.Send(cl, protocol.EncodeFrame(protocol.OpPong, true, f.Payload))
	default:
		h.log.Debug().Str("peer", cl.Peer()).Stringer("opcode", f.Opcode).Uint64("length", f.PayloadLength).Msg("ignoring frame")
	}
	return nil
}
