// File: reactor/pollset.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity slot table for one loop. Not safe for concurrent use.

package reactor

import "github.com/momentics/querylog/internal/transport"

const (
	evRead uint8 = 1 << iota
	evInvalid
)

// PollSet maps slot indices to connections. It is private to its loop.
type PollSet struct {
	slots         []*transport.Conn
	ready         []uint8
	listenerReady bool
	used          int
	buf           pollBuf
}

// NewPollSet returns an empty table with capacity slots.
func NewPollSet(capacity int) *PollSet {
	return &PollSet{
		slots: make([]*transport.Conn, capacity),
		ready: make([]uint8, capacity),
	}
}

// Cap returns the number of slots.
func (p *PollSet) Cap() int { return len(p.slots) }

// Len returns the number of occupied slots.
func (p *PollSet) Len() int { return p.used }

// Insert places c in the first free slot.
func (p *PollSet) Insert(c *transport.Conn) (int, bool) {
	for i, s := range p.slots {
		if s == nil {
			p.slots[i] = c
			p.ready[i] = 0
			p.used++
			return i, true
		}
	}
	return -1, false
}

// Remove empties slot i and returns what it held.
func (p *PollSet) Remove(i int) *transport.Conn {
	c := p.slots[i]
	if c != nil {
		p.slots[i] = nil
		p.ready[i] = 0
		p.used--
	}
	return c
}

// At returns the connection in slot i, or nil.
func (p *PollSet) At(i int) *transport.Conn { return p.slots[i] }

func (p *PollSet) clearReady() {
	p.listenerReady = false
	for i := range p.ready {
		p.ready[i] = 0
	}
}
