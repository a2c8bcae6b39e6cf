package generic

// Result is a (value, error) pair as a single value, e.g. for sending the outcome of a call over a channel.
type Result[T any] struct {
	Value T
	Error error
}

func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

// Parts is the inverse of NewResult.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

// Unwrap returns the value, panicking with the error if there is one.
func (r Result[T]) Unwrap() T {
	if r.Error != nil {
		panic(r.Error)
	}
	return r.Value
}

func (r Result[T]) UnwrapOr(other T) T {
	if r.Error != nil {
		return other
	}
	return r.Value
}

// Unwrap is for call sites where an error can only mean a programming mistake, e.g. Unwrap(regexp.Compile(...)).
func Unwrap[T any](value T, err error) T {
	return NewResult(value, err).Unwrap()
}

// Unwrap_ is like Unwrap, for calls that only return an error.
func Unwrap_(err error) {
	if err != nil {
		panic(err)
	}
}
