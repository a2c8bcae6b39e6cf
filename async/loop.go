package async

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/weeb/internal/lpc"
	"github.com/alanbriolat/weeb/internal/sync_"
)

var (
	ErrLoopClosed = errors.New("loop closed")
)

type Task func(ctx context.Context)

// Loop owns a single long-running worker goroutine that accepts tasks from any goroutine. Tasks run concurrently on
// goroutines tracked by the Loop, and see a context that is cancelled when the Loop is closed.
//
// Resources whose lifetime matches the Loop can be registered with Enter; they are closed, in reverse order, when the
// Loop is closed.
type Loop struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   chan Task
	running sync.WaitGroup
	closers *sync_.Mutexed[[]func() error]
	closed  sync_.Event
	done    chan struct{}
	log     *zap.SugaredLogger
}

func NewLoop(ctx context.Context) *Loop {
	ctx, cancel := context.WithCancel(ctx)
	l := &Loop{
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan Task),
		closers: sync_.NewMutexed[[]func() error](nil),
		done:    make(chan struct{}),
		log:     zap.S().Named("loop"),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	l.log.Debug("started")
	defer l.log.Debug("stopped")
	for {
		select {
		case <-l.ctx.Done():
			return
		case task := <-l.tasks:
			l.running.Add(1)
			go func() {
				defer l.running.Done()
				defer func() {
					if p := recover(); p != nil {
						l.log.Errorw("task panicked", "panic", p)
					}
				}()
				task(l.ctx)
			}()
		}
	}
}

// post blocks until the worker accepts the task.
func (l *Loop) post(ctx context.Context, task Task) error {
	select {
	case <-l.ctx.Done():
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.ctx.Done():
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn starts a background task owned by the Loop, without waiting for it.
func (l *Loop) Spawn(task Task) error {
	return l.post(context.Background(), task)
}

// Enter registers a closer to be called when the Loop is closed. If the Loop is already closed, the closer is called
// immediately and ErrLoopClosed is returned alongside any error it gives.
func (l *Loop) Enter(closer func() error) error {
	var entered bool
	_ = l.closers.Locked(func(closers *[]func() error) error {
		if !l.closed.IsSet() {
			*closers = append(*closers, closer)
			entered = true
		}
		return nil
	})
	if entered {
		return nil
	}
	var result error = ErrLoopClosed
	if err := closer(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Context returns the context seen by tasks, which is cancelled when the Loop is closed.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Close runs registered closers in reverse order, then stops the worker and waits for running tasks to return. Only
// the first call does anything; later calls just wait for the worker to stop.
func (l *Loop) Close() error {
	var closers []func() error
	var first bool
	_ = l.closers.Locked(func(c *[]func() error) error {
		first = l.closed.Set()
		closers, *c = *c, nil
		return nil
	})
	if !first {
		<-l.done
		return nil
	}

	var result error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		l.log.Warnw("error closing resources", "error", result)
	}
	l.cancel()
	<-l.done
	l.running.Wait()
	return result
}

// Submit runs fn on the Loop and waits for its result. The context given to fn is cancelled when either ctx or the
// Loop is done.
func Submit[T any](l *Loop, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	cmd := lpc.NewCommand[func(context.Context) (T, error), T](fn)
	err := l.post(ctx, func(loopCtx context.Context) {
		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(loopCtx, cancel)
		defer stop()
		_ = cmd.RespondResult(call(func() (T, error) { return cmd.Arg()(taskCtx) }))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return cmd.WaitContext(ctx)
}
