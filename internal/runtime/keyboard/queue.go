// Package keyboard bridges the keyboard interrupt handler and the tasks
// that consume keystrokes.
//
// The handler pushes raw scancodes into a bounded lock-free queue and wakes
// the consumer; the consumer drains the queue through a ScancodeStream.
// Neither side blocks and the handler never allocates.
package keyboard

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sirreidlos/amarui/internal/console"
	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/concurrency"
	"github.com/sirreidlos/amarui/internal/runtime/task"
)

// DefaultQueueCapacity is the number of scancodes buffered between the
// handler and the consumer.
const DefaultQueueCapacity = 100

// ScancodeQueue is a bounded FIFO of scancodes with a single registered
// consumer waker.
type ScancodeQueue struct {
	ring    *concurrency.RingQueue[byte]
	waker   task.AtomicWaker
	dropped atomic.Uint64
	pushed  atomic.Uint64
	taken   atomic.Bool
	logger  *zerolog.Logger
	allow   func(category string) bool
}

// NewScancodeQueue creates a queue holding at most capacity scancodes.
func NewScancodeQueue(capacity int, logger *zerolog.Logger) *ScancodeQueue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ScancodeQueue{
		ring:   concurrency.NewRingQueue[byte](capacity),
		logger: logger,
		allow:  console.Allow,
	}
}

// Push appends b and wakes the consumer. When the queue is full b is
// dropped and counted. Push never blocks and is safe in interrupt context.
func (q *ScancodeQueue) Push(b byte) bool {
	if !q.ring.Push(b) {
		n := q.dropped.Add(1)
		if q.allow("scancode-overflow") {
			q.logger.Warn().Uint64("dropped", n).Msg("scancode queue full; dropping keyboard input")
		}
		return false
	}
	q.pushed.Add(1)
	q.waker.Wake()
	return true
}

// Stream returns the consumer side of the queue. There is exactly one
// consumer; a second call fails.
func (q *ScancodeQueue) Stream() (*ScancodeStream, error) {
	if !q.taken.CompareAndSwap(false, true) {
		return nil, kerrors.AlreadyInitialized("scancode stream")
	}
	return &ScancodeStream{q: q}, nil
}

// Len returns the number of buffered scancodes.
func (q *ScancodeQueue) Len() int { return q.ring.Len() }

// Cap returns the queue capacity.
func (q *ScancodeQueue) Cap() int { return q.ring.Cap() }

// Dropped returns how many scancodes were discarded because the queue was
// full.
func (q *ScancodeQueue) Dropped() uint64 { return q.dropped.Load() }

// Pushed returns how many scancodes were accepted.
func (q *ScancodeQueue) Pushed() uint64 { return q.pushed.Load() }

var (
	global   atomic.Pointer[ScancodeQueue]
	initOnce sync.Once
)

// InitQueue creates the global scancode queue on first use and returns it.
// Later calls return the existing queue and ignore their arguments.
func InitQueue(capacity int, logger *zerolog.Logger) *ScancodeQueue {
	initOnce.Do(func() {
		global.Store(NewScancodeQueue(capacity, logger))
	})
	return global.Load()
}

// Queue returns the global queue, or nil before InitQueue.
func Queue() *ScancodeQueue { return global.Load() }

// AddScancode is called by the keyboard interrupt handler. Before the queue
// exists the scancode is dropped with a warning.
func AddScancode(b byte) {
	q := global.Load()
	if q == nil {
		if console.Allow("scancode-uninit") {
			console.Log().Warn().Msg("scancode queue uninitialized")
		}
		return
	}
	q.Push(b)
}
