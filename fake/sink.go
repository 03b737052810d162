// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake message sink for producer tests.

package fake

import "sync"

// Sink collects enqueued messages. Cap > 0 makes it refuse messages once full.
type Sink struct {
	mu   sync.Mutex
	msgs []string
	Cap  int
}

// Enqueue stores msg and reports whether it was accepted.
func (s *Sink) Enqueue(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Cap > 0 && len(s.msgs) >= s.Cap {
		return false
	}
	s.msgs = append(s.msgs, msg)
	return true
}

// Messages returns a copy of the accepted messages.
func (s *Sink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// Len returns the number of accepted messages.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
