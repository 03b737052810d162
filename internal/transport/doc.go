// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw stream sockets for the poll loops. Listeners are non-blocking and are
// only touched by their owning loop; accepted connections are blocking with
// per-socket receive and send timeouts.
//
// Descriptor ownership: any goroutine may Shutdown a Conn, which wakes a
// blocked reader and marks the Conn closed. Only the owning loop calls
// Release, which closes the descriptor. A descriptor number therefore cannot
// be recycled while another goroutine still holds the Conn.

package transport
