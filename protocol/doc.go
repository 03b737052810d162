// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the wire-level pieces of the query log server:
//   - zero-copy HTTP/1.x request line and header parsing into borrowed fragments
//   - canned HTTP responses for the static resource endpoint
//   - RFC6455 opening handshake validation and Sec-WebSocket-Accept derivation
//   - WebSocket frame encoding and stream decoding with masking support
//
// Everything here is transport agnostic: readers and writers are plain io.Reader
// and io.Writer values, so the same code serves raw sockets and test buffers.
package protocol
