package concurrency

import (
	"runtime"
	"sync/atomic"
)

// RingQueue is a bounded lock-free FIFO based on Dmitry Vyukov's per-slot
// sequence ring. Push and Pop never block and never allocate, which makes
// Push safe to call from an interrupt handler.
//
// The slot array is rounded up to a power of two but the queue never holds
// more than Cap() items.
type RingQueue[T any] struct {
	_pad0    [64]byte
	mask     uint64
	capacity uint64
	_pad1    [64]byte
	enqueue  atomic.Uint64
	_pad2    [64]byte
	dequeue  atomic.Uint64
	_pad3    [64]byte
	cells    []ringCell[T]
}

type ringCell[T any] struct {
	seq  atomic.Uint64
	_pad [56]byte
	val  T
}

// NewRingQueue creates a queue that holds at most capacity items.
func NewRingQueue[T any](capacity int) *RingQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	slots := uint64(2)
	for slots < uint64(capacity) {
		slots <<= 1
	}
	q := &RingQueue[T]{
		mask:     slots - 1,
		capacity: uint64(capacity),
		cells:    make([]ringCell[T], slots),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// Push inserts v at the tail. It reports false, leaving the queue untouched,
// when the queue already holds Cap() items.
func (q *RingQueue[T]) Push(v T) bool {
	for {
		pos := q.enqueue.Load()
		deq := q.dequeue.Load()
		if deq > pos {
			// pos is stale
			continue
		}
		if pos-deq >= q.capacity {
			return false
		}
		c := &q.cells[pos&q.mask]
		dif := int64(c.seq.Load()) - int64(pos)
		switch {
		case dif == 0:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				c.val = v
				c.seq.Store(pos + 1)
				return true
			}
		case dif < 0:
			return false
		default:
			// another producer claimed pos; reload
			runtime.Gosched()
		}
	}
}

// Pop removes the head item. ok is false when the queue is empty.
func (q *RingQueue[T]) Pop() (v T, ok bool) {
	for {
		pos := q.dequeue.Load()
		c := &q.cells[pos&q.mask]
		dif := int64(c.seq.Load()) - int64(pos+1)
		switch {
		case dif == 0:
			if q.dequeue.CompareAndSwap(pos, pos+1) {
				v = c.val
				var zero T
				c.val = zero
				c.seq.Store(pos + q.mask + 1)
				return v, true
			}
		case dif < 0:
			return v, false
		default:
			runtime.Gosched()
		}
	}
}

// Len is a snapshot of the number of queued items.
func (q *RingQueue[T]) Len() int {
	for {
		deq := q.dequeue.Load()
		enq := q.enqueue.Load()
		if enq >= deq {
			return int(enq - deq)
		}
	}
}

// Cap returns the maximum number of items the queue holds.
func (q *RingQueue[T]) Cap() int { return int(q.capacity) }

// IsEmpty reports whether Len() is zero.
func (q *RingQueue[T]) IsEmpty() bool { return q.Len() == 0 }
