// Package ids generates the numeric identifiers of catalog rows, records and
// value rows. Identifiers are time-ordered, unique per generator node and
// never reused, so "newest first" is "highest id first".
package ids

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is the zero point of the timestamp part (2020-01-01 UTC).
var Epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	nodeBits     = 10
	sequenceBits = 12
	maxNode      = 1<<nodeBits - 1
	maxSequence  = 1<<sequenceBits - 1
)

// Generator hands out 63-bit identifiers laid out as
// milliseconds-since-Epoch | node | sequence.
type Generator struct {
	mu       sync.Mutex
	node     int64
	lastMS   int64
	sequence int64
	now      func() time.Time
}

// New returns a generator for the given node (0..1023).
func New(node int64) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("ids: node %d out of range 0..%d", node, maxNode)
	}
	return &Generator{node: node, now: time.Now}, nil
}

// MustNew is New for package-level defaults.
func MustNew(node int64) *Generator {
	g, err := New(node)
	if err != nil {
		panic(err)
	}
	return g
}

// Next returns the next identifier. It blocks for the rest of the current
// millisecond when the sequence is exhausted, and never goes backwards when
// the wall clock does.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().Sub(Epoch).Milliseconds()
	if ms < g.lastMS {
		ms = g.lastMS
	}
	if ms == g.lastMS {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for ms <= g.lastMS {
				time.Sleep(time.Millisecond / 4)
				ms = g.now().Sub(Epoch).Milliseconds()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMS = ms
	return ms<<(nodeBits+sequenceBits) | g.node<<sequenceBits | g.sequence
}

// NextN returns n identifiers in ascending order.
func (g *Generator) NextN(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// Time extracts the creation time encoded in id.
func Time(id int64) time.Time {
	return Epoch.Add(time.Duration(id>>(nodeBits+sequenceBits)) * time.Millisecond)
}
