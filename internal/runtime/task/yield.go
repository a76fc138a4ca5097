package task

import "github.com/rs/zerolog"

// YieldFuture returns Pending once, waking itself first, then Ready.
type YieldFuture struct {
	yielded bool
}

// Yield gives every other ready task a turn before continuing.
func Yield() *YieldFuture { return &YieldFuture{} }

func (y *YieldFuture) Poll(cx *Context) Poll {
	if y.yielded {
		return Ready
	}
	y.yielded = true
	cx.Waker().Wake()
	return Pending
}

// NumberFuture yields once and then resolves to 42.
type NumberFuture struct {
	yield *YieldFuture
	value uint32
}

// AsyncNumber returns a fresh NumberFuture.
func AsyncNumber() *NumberFuture {
	return &NumberFuture{yield: Yield()}
}

func (n *NumberFuture) Poll(cx *Context) Poll {
	if n.yield.Poll(cx) == Pending {
		return Pending
	}
	n.value = 42
	return Ready
}

// Value is valid once Poll returned Ready.
func (n *NumberFuture) Value() uint32 { return n.value }

// NumberLoop is a demo task that awaits AsyncNumber in a loop. It logs once
// when it starts and counts results in Results. Without a limit it never
// completes.
type NumberLoop struct {
	label   string
	logger  zerolog.Logger
	limit   uint64
	started bool
	current *NumberFuture
	results uint64
	last    uint32
}

// NewNumberLoop creates a loop identified by label in its log record.
func NewNumberLoop(label string, logger zerolog.Logger) *NumberLoop {
	return &NumberLoop{label: label, logger: logger}
}

// WithLimit makes the loop complete after n numbers. Zero means no limit.
func (l *NumberLoop) WithLimit(n uint64) *NumberLoop {
	l.limit = n
	return l
}

func (l *NumberLoop) Poll(cx *Context) Poll {
	if !l.started {
		l.started = true
		l.logger.Info().Msgf("Calling async_number from %s", l.label)
	}
	for {
		if l.current == nil {
			l.current = AsyncNumber()
		}
		if l.current.Poll(cx) == Pending {
			return Pending
		}
		l.last = l.current.Value()
		l.results++
		l.current = nil
		if l.limit > 0 && l.results >= l.limit {
			return Ready
		}
	}
}

// Results returns how many numbers the loop has received.
func (l *NumberLoop) Results() uint64 { return l.results }

// Last returns the most recent number received.
func (l *NumberLoop) Last() uint32 { return l.last }
