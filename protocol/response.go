// File: protocol/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Canned HTTP/1.1 responses. Every response closes the connection.

package protocol

import (
	"io"
	"strconv"
)

const (
	responseOK = "HTTP/1.1 200 OK\r\n" +
		"Content-Length: 0\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	responseBadRequest = "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Length: 0\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	responseInternalError = "HTTP/1.1 500 Internal Server Error\r\n" +
		"Content-Length: 0\r\n" +
		"Connection: close\r\n" +
		"\r\n"
)

// WriteContent writes a 200 response carrying body with the given content type.
func WriteContent(w io.Writer, contentType string, body []byte) error {
	hdr := make([]byte, 0, 128)
	hdr = append(hdr, "HTTP/1.1 200 OK\r\nContent-Type: "...)
	hdr = append(hdr, contentType...)
	hdr = append(hdr, "\r\nContent-Length: "...)
	hdr = strconv.AppendInt(hdr, int64(len(body)), 10)
	hdr = append(hdr, "\r\nConnection: close\r\n\r\n"...)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// WriteOK writes an empty 200 response.
func WriteOK(w io.Writer) error {
	_, err := io.WriteString(w, responseOK)
	return err
}

// WriteBadRequest writes an empty 400 response.
func WriteBadRequest(w io.Writer) error {
	_, err := io.WriteString(w, responseBadRequest)
	return err
}

// WriteInternalError writes an empty 500 response.
func WriteInternalError(w io.Writer) error {
	_, err := io.WriteString(w, responseInternalError)
	return err
}
