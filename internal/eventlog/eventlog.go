// Package eventlog keeps the operator-visible history of recent events.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/wall-heater/internal/logger"
)

// DefaultCapacity is how many entries the status surfaces show.
const DefaultCapacity = 50

// Entry is one recorded event.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Ring is a fixed-capacity FIFO of entries. Once full, each new entry
// overwrites the oldest. Safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	buf      []Entry
	capacity int
	head     int // next write position
	count    int
	dropped  uint64
}

// NewRing returns an empty ring. A non-positive capacity uses DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Entry, capacity), capacity: capacity}
}

// Record appends an entry.
func (r *Ring) Record(at time.Time, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = Entry{Time: at, Message: msg}
	r.head = (r.head + 1) % r.capacity
	if r.count == r.capacity {
		r.dropped++
		return
	}
	r.count++
}

// Entries returns the retained entries, oldest first. The ring is not drained.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns how many entries were overwritten.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Journal writes each event to the ring and to the structured log.
type Journal struct {
	ring *Ring
	log  *logger.Logger
}

// NewJournal returns a journal over ring. log may be nil.
func NewJournal(ring *Ring, log *logger.Logger) *Journal {
	if log == nil {
		log = logger.NewNop()
	}
	return &Journal{ring: ring, log: log}
}

// Addf records a formatted event at the given time.
func (j *Journal) Addf(at time.Time, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.ring.Record(at, msg)
	j.log.Infow("event", "msg", msg)
}

// Entries returns the ring's entries, oldest first.
func (j *Journal) Entries() []Entry {
	return j.ring.Entries()
}
