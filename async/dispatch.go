package async

import (
	"context"

	"github.com/alanbriolat/weeb/internal/sync_"
)

// Dispatcher decides which goroutine runs completion callbacks.
type Dispatcher interface {
	Dispatch(f func())
}

type DispatcherFunc func(f func())

func (d DispatcherFunc) Dispatch(f func()) {
	d(f)
}

// Inline runs callbacks immediately, on whichever goroutine completed the work.
var Inline Dispatcher = DispatcherFunc(func(f func()) { f() })

// Queue collects callbacks so that a single owner goroutine can run them, e.g. the main goroutine of a CLI or the
// event loop of a UI toolkit. Dispatch never blocks, so a callback running on the owner may dispatch more callbacks.
// Once the queue is closed, callbacks run inline.
type Queue struct {
	state *sync_.Mutexed[queueState]
	// wake has room for one pending notification
	wake    chan struct{}
	closing chan struct{}
}

type queueState struct {
	pending []func()
	closed  bool
}

func NewQueue() *Queue {
	return &Queue{
		state:   sync_.NewMutexed(queueState{}),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
}

func (q *Queue) Dispatch(f func()) {
	closed := false
	_ = q.state.Locked(func(s *queueState) error {
		if s.closed {
			closed = true
		} else {
			s.pending = append(s.pending, f)
		}
		return nil
	})
	if closed {
		f()
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (f func(), ok bool) {
	_ = q.state.Locked(func(s *queueState) error {
		if len(s.pending) > 0 {
			f, ok = s.pending[0], true
			s.pending[0] = nil
			s.pending = s.pending[1:]
		}
		return nil
	})
	return f, ok
}

// Drain runs queued callbacks, including any they dispatch, until the queue is empty. Returns how many were run.
func (q *Queue) Drain() int {
	n := 0
	for {
		f, ok := q.pop()
		if !ok {
			return n
		}
		f()
		n++
	}
}

// Run runs callbacks as they arrive until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	return q.RunUntil(ctx, nil)
}

// RunUntil runs callbacks as they arrive until done is closed, ctx is done or the queue is closed. Callbacks queued
// before done was closed are run before returning.
func (q *Queue) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		q.Drain()
		select {
		case <-q.wake:
		case <-q.closing:
			q.Drain()
			return nil
		case <-done:
			q.Drain()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops queueing; callbacks still queued can be run with Drain.
func (q *Queue) Close() {
	_ = q.state.Locked(func(s *queueState) error {
		if !s.closed {
			s.closed = true
			close(q.closing)
		}
		return nil
	})
}
