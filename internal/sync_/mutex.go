package sync_

import "sync"

type RMutexer[T any] interface {
	// RLocked runs f with (at least) a read lock held.
	RLocked(f func(T) error) error
	Get() T
}

type Mutexer[T any] interface {
	RMutexer[T]
	// Locked runs f with the write lock held, so the value can be modified in place.
	Locked(f func(*T) error) error
	Set(value T)
	// Swap replaces the value, returning the old one.
	Swap(value T) T
}

type rwLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// exclusive is a sync.Mutex where readers also take the exclusive lock.
type exclusive struct {
	sync.Mutex
}

func (e *exclusive) RLock() {
	e.Lock()
}

func (e *exclusive) RUnlock() {
	e.Unlock()
}

type guarded[T any] struct {
	mu    rwLocker
	value T
}

func (g *guarded[T]) Locked(f func(*T) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return f(&g.value)
}

func (g *guarded[T]) RLocked(f func(T) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return f(g.value)
}

func (g *guarded[T]) Get() (value T) {
	_ = g.RLocked(func(v T) error {
		value = v
		return nil
	})
	return value
}

func (g *guarded[T]) Set(value T) {
	g.Swap(value)
}

func (g *guarded[T]) Swap(value T) (old T) {
	_ = g.Locked(func(v *T) error {
		old, *v = *v, value
		return nil
	})
	return old
}

// Mutexed is a value guarded by a sync.Mutex. Use NewMutexed; the zero value is not usable.
type Mutexed[T any] struct {
	guarded[T]
}

func NewMutexed[T any](value T) *Mutexed[T] {
	return &Mutexed[T]{guarded[T]{mu: &exclusive{}, value: value}}
}

// RWMutexed is a value guarded by a sync.RWMutex, so that readers don't block each other. Use NewRWMutexed; the zero
// value is not usable.
type RWMutexed[T any] struct {
	guarded[T]
}

func NewRWMutexed[T any](value T) *RWMutexed[T] {
	return &RWMutexed[T]{guarded[T]{mu: &sync.RWMutex{}, value: value}}
}
