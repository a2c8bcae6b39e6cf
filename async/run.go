package async

import (
	"github.com/alanbriolat/weeb/generic"
)

// RunResult runs a function in a goroutine, returning its result via a channel. A panic is converted to a *PanicError.
func RunResult[T any](f func() (T, error)) <-chan generic.Result[T] {
	c := make(chan generic.Result[T], 1)
	go func() {
		c <- generic.NewResult(call(f))
	}()
	return c
}
