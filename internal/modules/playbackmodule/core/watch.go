// Package core implements the decoder pool and playback scheduling engine.
package core

import (
	"context"
	"sync"
)

// Value is a single-writer, last-value-wins broadcast cell. Readers always
// observe the most recent value; intermediate values may be skipped. It is
// the coordination primitive between the frame pump, the audio thread, and
// control-plane callers (stop flag, event channel, project hot reload).
type Value[T any] struct {
	mu      sync.RWMutex
	val     T
	version uint64
	changed chan struct{}
}

// NewValue creates a cell holding an initial value at version zero
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		val:     initial,
		changed: make(chan struct{}),
	}
}

// Set stores a new value and wakes all waiting readers
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.val = val
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val
}

// Changed returns a channel closed on the next Set. The channel is only good
// for one change; call again after it fires.
func (v *Value[T]) Changed() <-chan struct{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.changed
}

func (v *Value[T]) snapshot() (T, uint64, <-chan struct{}) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.version, v.changed
}

// Subscribe creates a receiver that tracks which version it has seen.
// The current value counts as unseen, so a first Wait returns immediately
// only after the next Set; use Latest for the current value.
func (v *Value[T]) Subscribe() *Receiver[T] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &Receiver[T]{value: v, seen: v.version}
}

// Receiver reads a Value with change tracking. Not safe for concurrent use
// by multiple goroutines.
type Receiver[T any] struct {
	value *Value[T]
	seen  uint64
}

// Latest returns the current value and marks it seen
func (r *Receiver[T]) Latest() T {
	val, version, _ := r.value.snapshot()
	r.seen = version
	return val
}

// HasChanged reports whether a value newer than the last seen one exists
func (r *Receiver[T]) HasChanged() bool {
	_, version, _ := r.value.snapshot()
	return version > r.seen
}

// Wait blocks until a value newer than the last seen one is available, then
// returns it and marks it seen. Returns ctx.Err on cancellation.
func (r *Receiver[T]) Wait(ctx context.Context) (T, error) {
	for {
		val, version, changed := r.value.snapshot()
		if version > r.seen {
			r.seen = version
			return val, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
