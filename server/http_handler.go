// File: server/http_handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One request per connection: read the header block, answer, close.

package server

import (
	"bytes"
	"io"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/internal/transport"
	"github.com/momentics/querylog/protocol"
	"github.com/momentics/querylog/reactor"
	"github.com/momentics/querylog/ui"
)

type httpHandler struct {
	log       zerolog.Logger
	buf       []byte
	resources map[string]ui.Resource

	accepted   *control.Counter
	rejected   *control.Counter
	badRequest *control.Counter
}

func newHTTPHandler(cfg *Config, res []ui.Resource, mr *control.MetricsRegistry, log zerolog.Logger) *httpHandler {
	h := &httpHandler{
		log:        log,
		buf:        make([]byte, cfg.MaxHeaderBytes),
		resources:  make(map[string]ui.Resource, len(res)),
		accepted:   mr.Counter("http.accepted"),
		rejected:   mr.Counter("http.rejected"),
		badRequest: mr.Counter("http.bad_request"),
	}
	for _, r := range res {
		h.resources[r.Path] = r
	}
	return h
}

func (h *httpHandler) Accept(*transport.Conn) { h.accepted.Inc() }

func (h *httpHandler) Reject(*transport.Conn) { h.rejected.Inc() }

func (h *httpHandler) Release(*transport.Conn) {}

func (h *httpHandler) Serve(c *transport.Conn) error {
	n, err := protocol.ReadHeaders(c, h.buf)
	if err != nil {
		return err
	}
	if err := h.respond(c, h.buf[:n]); err != nil {
		return err
	}
	return reactor.ErrDone
}

// respond writes exactly one response for the request held in req.
func (h *httpHandler) respond(w io.Writer, req []byte) error {
	rl, rest, err := protocol.ParseRequestLine(req)
	if err != nil {
		return h.bad(w, err, "request line")
	}
	if _, err := protocol.ParseHeaders(req[rest:], nil); err != nil {
		return h.bad(w, err, "headers")
	}
	if rl.Version > protocol.HTTPVersionMax1x {
		return h.bad(w, nil, "http version")
	}

	path := rl.Target
	if i := bytes.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	res, ok := h.resources[string(path)]
	if !ok {
		return h.bad(w, nil, "unknown path")
	}

	switch string(rl.Method) {
	case "GET":
		h.log.Debug().Str("path", res.Path).Int("bytes", len(res.Body)).Msg("serving resource")
		return protocol.WriteContent(w, res.ContentType, res.Body)
	case "HEAD":
		return protocol.WriteOK(w)
	default:
		return h.bad(w, nil, "method")
	}
}

func (h *httpHandler) bad(w io.Writer, err error, reason string) error {
	h.badRequest.Inc()
	h.log.Debug().Err(err).Str("reason", reason).Msg("bad request")
	return protocol.WriteBadRequest(w)
}
