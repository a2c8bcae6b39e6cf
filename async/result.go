package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alanbriolat/weeb/internal/sync_"
)

var (
	ErrCancelled = errors.New("cancelled")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true for every status except StatusRunning.
func (s Status) IsTerminal() bool {
	return s != StatusRunning
}

type Observer[T any] func(*Result[T])

// Result is the eventual outcome of one asynchronous operation. It starts out running, and makes exactly one
// transition to finished, failed or cancelled; once terminal, nothing about it changes.
//
// Observers registered with OnCancel, OnFail and OnFinish are called on the goroutine that makes the matching
// transition. An observer registered after the Result already reached the matching state is called immediately, on the
// registering goroutine, so a notification can't be missed by registering too late. Observers for any other state are
// never called.
type Result[T any] struct {
	mu       sync.Mutex
	status   Status
	value    T
	err      error
	onCancel Observer[T]
	onFail   Observer[T]
	onFinish Observer[T]
	done     sync_.Event
}

// New creates a running Result with an initial value.
func New[T any](initial T) *Result[T] {
	return &Result[T]{
		status: StatusRunning,
		value:  initial,
	}
}

// Cancel marks the Result as cancelled. Nothing running on behalf of the Result is interrupted, but its completion
// callback will not be delivered. Returns false (and does nothing) if the Result was already terminal.
func (r *Result[T]) Cancel() bool {
	return r.transition(StatusCancelled, nil)
}

// Fail marks the Result as failed with err. Returns false (and does nothing) if the Result was already terminal.
func (r *Result[T]) Fail(err error) bool {
	if err == nil {
		err = errors.New("failed with nil error")
	}
	return r.transition(StatusFailed, err)
}

// Finish marks the Result as finished, freezing its value. Returns false (and does nothing) if the Result was already
// terminal.
func (r *Result[T]) Finish() bool {
	return r.transition(StatusFinished, nil)
}

func (r *Result[T]) transition(to Status, err error) bool {
	r.mu.Lock()
	if r.status != StatusRunning {
		r.mu.Unlock()
		return false
	}
	r.status = to
	r.err = err
	observer := r.observer(to)
	r.mu.Unlock()

	defer r.done.Set()
	if observer != nil {
		observer(r)
	}
	return true
}

// observer must be called with r.mu held.
func (r *Result[T]) observer(s Status) Observer[T] {
	switch s {
	case StatusCancelled:
		return r.onCancel
	case StatusFailed:
		return r.onFail
	case StatusFinished:
		return r.onFinish
	default:
		return nil
	}
}

func (r *Result[T]) setObserver(s Status, o Observer[T]) {
	r.mu.Lock()
	switch s {
	case StatusCancelled:
		r.onCancel = o
	case StatusFailed:
		r.onFail = o
	case StatusFinished:
		r.onFinish = o
	}
	fire := r.status == s
	r.mu.Unlock()

	if fire && o != nil {
		o(r)
	}
}

func (r *Result[T]) OnCancel(o Observer[T]) {
	r.setObserver(StatusCancelled, o)
}

func (r *Result[T]) OnFail(o Observer[T]) {
	r.setObserver(StatusFailed, o)
}

func (r *Result[T]) OnFinish(o Observer[T]) {
	r.setObserver(StatusFinished, o)
}

func (r *Result[T]) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Result[T]) IsRunning() bool {
	return r.Status() == StatusRunning
}

func (r *Result[T]) IsFinished() bool {
	return r.Status() == StatusFinished
}

func (r *Result[T]) IsFailed() bool {
	return r.Status() == StatusFailed
}

func (r *Result[T]) IsCancelled() bool {
	return r.Status() == StatusCancelled
}

// Value returns the current value, which is only meaningful once the Result is finished.
func (r *Result[T]) Value() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// SetValue replaces the value, only while the Result is running.
func (r *Result[T]) SetValue(value T) bool {
	return r.Update(func(v *T) { *v = value })
}

// Update mutates the value in place with the Result locked, only while the Result is running. Returns false without
// calling f if the Result is already terminal.
func (r *Result[T]) Update(f func(*T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return false
	}
	f(&r.value)
	return true
}

// Err returns the error the Result failed with, or nil.
func (r *Result[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done returns a channel that is closed once the Result is terminal and the transition's observer has returned.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done.Wait()
}

// Wait blocks until the Result is terminal, returning its value and error. A cancelled Result gives ErrCancelled.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.Done():
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusCancelled:
		return r.value, ErrCancelled
	case StatusFailed:
		return r.value, r.err
	default:
		return r.value, nil
	}
}

func (r *Result[T]) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return fmt.Sprintf("Result{Status:%q, Error:%q}", r.status, r.err)
	}
	return fmt.Sprintf("Result{Status:%q}", r.status)
}
