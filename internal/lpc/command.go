// Package lpc stands for "Local Procedure Call". It's a typed RPC-like mechanism implemented over Go channels, intended
// for communication with long-running goroutines.
package lpc

import (
	"context"
	"errors"
	"sync"

	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

// Command carries an argument to a long-running goroutine and a single response back. The zero value is unusable,
// create instances with New or NewCommand.
type Command[Arg any, Response any] struct {
	initialized bool
	arg         Arg
	mu          sync.Mutex
	response    generic.Result[Response]
	done        sync_.Event
}

func (*Command[Arg, Response]) New(arg Arg) *Command[Arg, Response] {
	return NewCommand[Arg, Response](arg)
}

func NewCommand[Arg any, Response any](arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		initialized: true,
		arg:         arg,
		response:    generic.Err[Response](ErrNoResponse), // Default error if closed with no response
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	c.mustBeInitialized("Arg")
	return c.arg
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	return c.respond("Respond", generic.Ok(response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	return c.respond("RespondError", generic.Err[Response](err))
}

// RespondResult responds with a (value, error) pair, for forwarding the return values of a function call.
func (c *Command[Arg, Response]) RespondResult(response Response, err error) error {
	return c.respond("RespondResult", generic.NewResult(response, err))
}

func (c *Command[Arg, Response]) respond(method string, result generic.Result[Response]) error {
	c.mustBeInitialized(method)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = result
	c.done.Set()
	return nil
}

// Done returns a channel that is closed once a response has been sent (or the Command closed).
func (c *Command[Arg, Response]) Done() <-chan struct{} {
	c.mustBeInitialized("Done")
	return c.done.Wait()
}

func (c *Command[Arg, Response]) Wait() (Response, error) {
	c.mustBeInitialized("Wait")
	<-c.done.Wait()
	return c.response.Parts()
}

// WaitContext is like Wait, but gives up with ctx.Err() if ctx is done first. The Command may still receive a
// response later, which is discarded.
func (c *Command[Arg, Response]) WaitContext(ctx context.Context) (Response, error) {
	c.mustBeInitialized("WaitContext")
	select {
	case <-c.done.Wait():
		return c.response.Parts()
	case <-ctx.Done():
		var zero Response
		return zero, ctx.Err()
	}
}

func (c *Command[Arg, Response]) Close() {
	c.mustBeInitialized("Close")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done.Set()
}

func (c *Command[Arg, Response]) mustBeInitialized(method string) {
	if c == nil || !c.initialized {
		panic("attempted to call ." + method + "() on uninitialized Command, must use .New() first")
	}
}
