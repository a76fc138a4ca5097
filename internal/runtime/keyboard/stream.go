package keyboard

import "github.com/sirreidlos/amarui/internal/runtime/task"

// ScancodeStream is the consumer end of a ScancodeQueue.
type ScancodeStream struct {
	q *ScancodeQueue
}

// PollNext returns the next scancode, or Pending after registering the
// task's waker. The queue is checked again after registering so a push
// that raced with registration is never missed.
func (s *ScancodeStream) PollNext(cx *task.Context) (byte, task.Poll) {
	if b, ok := s.q.ring.Pop(); ok {
		return b, task.Ready
	}
	s.q.waker.Register(cx.Waker())
	if b, ok := s.q.ring.Pop(); ok {
		s.q.waker.Take()
		return b, task.Ready
	}
	return 0, task.Pending
}
