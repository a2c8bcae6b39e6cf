package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestResult_Finish(t *testing.T) {
	assert := assert_.New(t)

	r := New(0)
	assert.True(r.IsRunning())
	assert.True(r.SetValue(42))
	assert.True(r.Finish())
	assert.True(r.IsFinished())
	assert.Equal(42, r.Value())
	assert.Nil(r.Err())

	// Terminal state is frozen
	assert.False(r.Finish())
	assert.False(r.Fail(errors.New("too late")))
	assert.False(r.Cancel())
	assert.False(r.SetValue(1))
	assert.False(r.Update(func(v *int) { *v = 2 }))
	assert.Equal(42, r.Value())
	assert.Equal(StatusFinished, r.Status())
}

func TestResult_Fail(t *testing.T) {
	assert := assert_.New(t)

	err := errors.New("boom")
	r := New("")
	assert.True(r.Fail(err))
	assert.True(r.IsFailed())
	assert.ErrorIs(r.Err(), err)
	assert.False(r.Finish())
	assert.True(r.Status().IsTerminal())

	// A nil error still produces a failure with an error
	r2 := New("")
	assert.True(r2.Fail(nil))
	assert.Error(r2.Err())
}

func TestResult_ObserverCalledOnce(t *testing.T) {
	assert := assert_.New(t)

	r := New(0)
	var finished, failed, cancelled int
	r.OnFinish(func(*Result[int]) { finished++ })
	r.OnFail(func(*Result[int]) { failed++ })
	r.OnCancel(func(*Result[int]) { cancelled++ })

	r.Finish()
	r.Finish()
	r.Cancel()
	assert.Equal(1, finished)
	assert.Equal(0, failed)
	assert.Equal(0, cancelled)
}

func TestResult_LateObserver(t *testing.T) {
	assert := assert_.New(t)

	r := New(0)
	r.Cancel()

	// Registering after the matching transition fires immediately
	var cancelled bool
	r.OnCancel(func(*Result[int]) { cancelled = true })
	assert.True(cancelled)

	// Registering for a state that was not reached never fires
	var finished bool
	r.OnFinish(func(*Result[int]) { finished = true })
	assert.False(finished)
}

func TestResult_ObserverSeesTerminalState(t *testing.T) {
	assert := assert_.New(t)

	r := New(0)
	r.OnFinish(func(r *Result[int]) {
		assert.True(r.IsFinished())
		assert.False(r.SetValue(1))
	})
	r.Finish()
}

func TestResult_Wait(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()

	r := New(0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.SetValue(7)
		r.Finish()
	}()
	v, err := r.Wait(ctx)
	assert.NoError(err)
	assert.Equal(7, v)

	c := New(0)
	c.Cancel()
	_, err = c.Wait(ctx)
	assert.ErrorIs(err, ErrCancelled)

	pending := New(0)
	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(timeout)
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func TestResult_ConcurrentTransitions(t *testing.T) {
	assert := assert_.New(t)

	r := New(0)
	var mu sync.Mutex
	calls := 0
	count := func(*Result[int]) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}
	r.OnFinish(count)
	r.OnFail(count)
	r.OnCancel(count)

	var wg sync.WaitGroup
	wins := make(chan bool, 30)
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); wins <- r.Finish() }()
		go func() { defer wg.Done(); wins <- r.Fail(errors.New("x")) }()
		go func() { defer wg.Done(); wins <- r.Cancel() }()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(1, won)
	assert.Equal(1, calls)
}
