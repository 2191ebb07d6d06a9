// Package shmring is a fixed-capacity single-producer, single-consumer ring
// shared between the caller context and a notification-handler context.
//
// The producer fills a cell and then publishes it by advancing head; the
// consumer takes the cell at tail and then releases it by advancing tail.
// Index updates happen inside a critical section so neither side ever sees
// the other half-way through an update.
package shmring

import "eeparam-go/x/critical"

// Ring holds up to Cap() values. Exactly one goroutine may call TryPut and
// exactly one (possibly different) goroutine may call TryGet.
type Ring[T any] struct {
	cs   critical.Section
	buf  []T
	head uint32 // next cell the producer fills
	tail uint32 // next cell the consumer takes
}

// New returns a ring that accepts capacity values before reporting full.
// One extra cell is kept so that "advancing head would equal tail" means full.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("shmring: capacity must be >= 1")
	}
	return &Ring[T]{buf: make([]T, capacity+1)}
}

func (r *Ring[T]) next(i uint32) uint32 {
	i++
	if i == uint32(len(r.buf)) {
		return 0
	}
	return i
}

// Producer side

// TryPut appends v. It returns false, leaving the ring untouched, when full.
func (r *Ring[T]) TryPut(v T) bool {
	r.cs.Enter()
	head, tail := r.head, r.tail
	r.cs.Exit()

	nh := r.next(head)
	if nh == tail {
		return false
	}
	// The cell at head is invisible to the consumer until head moves.
	r.buf[head] = v

	r.cs.Enter()
	r.head = nh
	r.cs.Exit()
	return true
}

// Consumer side

// TryGet removes the oldest value. ok is false when the ring is empty.
func (r *Ring[T]) TryGet() (v T, ok bool) {
	r.cs.Enter()
	head, tail := r.head, r.tail
	r.cs.Exit()

	if head == tail {
		return v, false
	}
	v = r.buf[tail]
	var zero T
	r.buf[tail] = zero

	r.cs.Enter()
	r.tail = r.next(tail)
	r.cs.Exit()
	return v, true
}

// Len reports the number of values waiting.
func (r *Ring[T]) Len() int {
	r.cs.Enter()
	head, tail := r.head, r.tail
	r.cs.Exit()
	if head >= tail {
		return int(head - tail)
	}
	return len(r.buf) - int(tail-head)
}

// Cap reports how many values fit.
func (r *Ring[T]) Cap() int { return len(r.buf) - 1 }
