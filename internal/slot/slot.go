// Package slot provides a guarded single-value store shared between one
// publishing goroutine and any number of readers.
package slot

import (
	"sync"
	"time"
)

// Slot holds the latest published value together with a sequence counter and
// the time it was published. The zero value is ready to use.
type Slot[T any] struct {
	mu    sync.RWMutex
	value T
	at    time.Time
	seq   uint64
	now   func() time.Time
}

// New returns an empty slot stamped with the wall clock.
func New[T any]() *Slot[T] {
	return &Slot[T]{now: time.Now}
}

// NewWithClock returns an empty slot stamped with now.
func NewWithClock[T any](now func() time.Time) *Slot[T] {
	return &Slot[T]{now: now}
}

// Publish stores v and advances the sequence counter.
func (s *Slot[T]) Publish(v T) {
	t := time.Now()
	if s.now != nil {
		t = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.at = t
	s.seq++
}

// Snapshot is a read of a slot.
type Snapshot[T any] struct {
	Value T
	At    time.Time
	Seq   uint64
}

// Valid reports whether anything was ever published.
func (s Snapshot[T]) Valid() bool { return s.Seq > 0 }

// Load returns the most recent value and its metadata.
func (s *Slot[T]) Load() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot[T]{Value: s.value, At: s.at, Seq: s.seq}
}

// Value returns the most recent value and whether one was ever published.
func (s *Slot[T]) Value() (T, bool) {
	snap := s.Load()
	return snap.Value, snap.Valid()
}
