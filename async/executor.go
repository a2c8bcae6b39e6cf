package async

import (
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PanicError is the failure recorded when a task panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Executor runs blocking work on background goroutines, publishing the outcome into a Result and handing completion
// callbacks to its Dispatcher.
type Executor struct {
	dispatcher Dispatcher
	log        *zap.SugaredLogger
}

func NewExecutor(dispatcher Dispatcher) *Executor {
	if dispatcher == nil {
		dispatcher = Inline
	}
	return &Executor{
		dispatcher: dispatcher,
		log:        zap.S().Named("executor"),
	}
}

func (e *Executor) Dispatcher() Dispatcher {
	return e.dispatcher
}

// Deliver hands callback to the dispatcher unless r was cancelled.
func Deliver[T any](e *Executor, r *Result[T], callback func(*Result[T])) {
	if callback == nil || r.IsCancelled() {
		return
	}
	e.dispatcher.Dispatch(func() { callback(r) })
}

// Go runs fn on a new goroutine. The returned Result finishes with fn's value, or fails with fn's error (or a
// *PanicError). Unless the Result was cancelled in the meantime, callback is then dispatched with it.
func Go[T any](e *Executor, fn func() (T, error), callback func(*Result[T])) *Result[T] {
	var zero T
	r := New(zero)
	GoInto(e, r, fn, callback)
	return r
}

// GoInto is like Go, but publishes into an existing Result.
func GoInto[T any](e *Executor, r *Result[T], fn func() (T, error), callback func(*Result[T])) {
	log := e.log.With("task_id", uuid.NewString())
	go func() {
		value, err := call(fn)
		if err != nil {
			if r.Fail(err) {
				log.Debugw("task failed", "error", err)
			}
		} else if r.SetValue(value) {
			r.Finish()
		}
		if r.IsCancelled() {
			log.Debug("task cancelled, dropping callback")
		}
		Deliver(e, r, callback)
	}()
}

// Stream is like Go, for work that produces intermediate chunks. fn calls emit for each chunk, which is passed to
// onChunk on the worker goroutine; emit returns false once the Result is no longer running, and fn should stop.
func Stream[C any, T any](e *Executor, fn func(emit func(C) bool) (T, error), onChunk func(C), callback func(*Result[T])) *Result[T] {
	var zero T
	r := New(zero)
	emit := func(chunk C) bool {
		if !r.IsRunning() {
			return false
		}
		if onChunk != nil {
			onChunk(chunk)
		}
		return true
	}
	GoInto(e, r, func() (T, error) { return fn(emit) }, callback)
	return r
}

func call[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn()
}
