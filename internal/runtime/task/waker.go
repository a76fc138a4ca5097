package task

import "sync/atomic"

// Waker marks a suspended task ready. Wake is safe to call from interrupt
// handlers and from any goroutine, any number of times.
type Waker struct {
	id   TaskID
	wake func()
}

// NewWaker returns a waker that calls fn. It is meant for code that polls
// futures outside an executor.
func NewWaker(id TaskID, fn func()) *Waker {
	return &Waker{id: id, wake: fn}
}

// Wake schedules the task.
func (w *Waker) Wake() {
	if w != nil && w.wake != nil {
		w.wake()
	}
}

// TaskID returns the id of the task this waker schedules.
func (w *Waker) TaskID() TaskID { return w.id }

// Context is passed to Future.Poll.
type Context struct {
	waker *Waker
}

// NewContext returns a context carrying w.
func NewContext(w *Waker) *Context { return &Context{waker: w} }

// Waker returns the waker of the task being polled.
func (cx *Context) Waker() *Waker { return cx.waker }

// AtomicWaker holds at most one registered waker. A producer in interrupt
// context calls Wake; a consumer registers before re-checking its condition,
// so a wake between the check and the registration is never lost.
type AtomicWaker struct {
	w atomic.Pointer[Waker]
}

// Register replaces any previous registration with w.
func (a *AtomicWaker) Register(w *Waker) {
	a.w.Store(w)
}

// Wake takes the registered waker, if any, and wakes it.
func (a *AtomicWaker) Wake() {
	if w := a.w.Swap(nil); w != nil {
		w.Wake()
	}
}

// Take removes and returns the registration without waking it.
func (a *AtomicWaker) Take() *Waker {
	return a.w.Swap(nil)
}

// Registered reports whether a waker is currently registered.
func (a *AtomicWaker) Registered() bool {
	return a.w.Load() != nil
}
