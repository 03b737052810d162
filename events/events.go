// File: events/events.go
// Package events
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Query lifecycle events and their JSON wire form. Every event carries a
// "type" discriminator and a "time" in milliseconds since the Unix epoch.

package events

import (
	"encoding/json"
	"fmt"
)

// Event types.
const (
	TypeQueryStart  = "query_start"
	TypeQueryError  = "query_error"
	TypeQueryResult = "query_result"
)

// Event is a JSON encodable query event.
type Event interface {
	EventType() string
	stamp()
}

// QueryStart is emitted when a statement begins executing.
type QueryStart struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Query    string `json:"query"`
	Time     int64  `json:"time"`
	Rows     int64  `json:"rows"`
	QueryID  int64  `json:"query_id"`
	Database string `json:"database"`
}

func (*QueryStart) EventType() string { return TypeQueryStart }
func (e *QueryStart) stamp()          { e.Type = TypeQueryStart }

// QueryError is emitted when a statement fails.
type QueryError struct {
	Type         string `json:"type"`
	QueryID      int64  `json:"query_id"`
	Time         int64  `json:"time"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (*QueryError) EventType() string { return TypeQueryError }
func (e *QueryError) stamp()          { e.Type = TypeQueryError }

// QueryResult is emitted when a statement produced its result.
type QueryResult struct {
	Type    string `json:"type"`
	QueryID int64  `json:"query_id"`
	Time    int64  `json:"time"`
	Rows    int64  `json:"rows"`
}

func (*QueryResult) EventType() string { return TypeQueryResult }
func (e *QueryResult) stamp()          { e.Type = TypeQueryResult }

// Encode returns the JSON text of e with its type field filled in.
func Encode(e Event) (string, error) {
	e.stamp()
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return string(b), nil
}

// Decode parses a JSON event by its type field.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	var e Event
	switch head.Type {
	case TypeQueryStart:
		e = &QueryStart{}
	case TypeQueryError:
		e = &QueryError{}
	case TypeQueryResult:
		e = &QueryResult{}
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", head.Type)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return e, nil
}
