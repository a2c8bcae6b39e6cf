package generic

import "fmt"

// Option is a value that may be absent, such as an optional field of a decoded API response. The zero value is None.
type Option[T any] struct {
	Value    T
	hasValue bool
}

func Some[T any](value T) Option[T] {
	return Option[T]{Value: value, hasValue: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// FromPtr is Some(*p), or None if p is nil.
func FromPtr[T any](p *T) Option[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// NonZero is Some(value), or None if value is the zero value of T (e.g. an empty string).
func NonZero[T comparable](value T) Option[T] {
	var zero T
	if value == zero {
		return None[T]()
	}
	return Some(value)
}

// Get returns the value and whether there was one, for use in if-statements.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.hasValue
}

func (o Option[T]) IsNone() bool {
	return !o.hasValue
}

func (o Option[T]) IsSome() bool {
	return o.hasValue
}

// Or returns o if it has a value, otherwise other.
func (o Option[T]) Or(other Option[T]) Option[T] {
	if o.hasValue {
		return o
	}
	return other
}

// UnwrapOr returns the value, or other if there is no value.
func (o Option[T]) UnwrapOr(other T) T {
	if o.hasValue {
		return o.Value
	}
	return other
}

func (o Option[T]) String() string {
	if o.hasValue {
		return fmt.Sprintf("Some(%v)", o.Value)
	}
	return "None"
}
