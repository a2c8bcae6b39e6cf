package generic

// Set is a collection of unique items. Iteration order (ToSlice) is insertion order.
type Set[T any] interface {
	Add(item T) bool
	// AddAll adds each item, returning how many were not already present.
	AddAll(items ...T) int
	Clear()
	Contains(items ...T) bool
	Clone() Set[T]
	Count() int
	Remove(item T) bool
	ToSlice() []T
	// Union adds every item of other to this set, returning how many were new.
	Union(other Set[T]) int
}

// NewSet creates a Set of comparable items, where items are their own identity.
func NewSet[T comparable](items ...T) Set[T] {
	return NewKeyedSet(func(item T) T { return item }, items...)
}

// NewKeyedSet creates a Set whose identity is decided by key, for items that are not themselves comparable (or where
// only some fields decide equality). When an item with an existing key is added, the existing item is kept.
func NewKeyedSet[K comparable, T any](key func(T) K, items ...T) Set[T] {
	s := &keyedSet[K, T]{
		key:   key,
		items: make(map[K]T, len(items)),
	}
	s.AddAll(items...)
	return s
}

type keyedSet[K comparable, T any] struct {
	key   func(T) K
	items map[K]T
	order []K
}

func (s *keyedSet[K, T]) Add(item T) bool {
	k := s.key(item)
	if _, found := s.items[k]; found {
		return false
	}
	s.items[k] = item
	s.order = append(s.order, k)
	return true
}

func (s *keyedSet[K, T]) AddAll(items ...T) int {
	added := 0
	for _, item := range items {
		if s.Add(item) {
			added++
		}
	}
	return added
}

func (s *keyedSet[K, T]) Clear() {
	s.items = make(map[K]T)
	s.order = nil
}

func (s *keyedSet[K, T]) Clone() Set[T] {
	return NewKeyedSet(s.key, s.ToSlice()...)
}

func (s *keyedSet[K, T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := s.items[s.key(item)]; !found {
			return false
		}
	}
	return true
}

func (s *keyedSet[K, T]) Count() int {
	return len(s.items)
}

func (s *keyedSet[K, T]) Remove(item T) bool {
	k := s.key(item)
	if _, found := s.items[k]; !found {
		return false
	}
	delete(s.items, k)
	for i, other := range s.order {
		if other == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *keyedSet[K, T]) ToSlice() []T {
	slice := make([]T, 0, len(s.order))
	for _, k := range s.order {
		slice = append(slice, s.items[k])
	}
	return slice
}

func (s *keyedSet[K, T]) Union(other Set[T]) int {
	if other == nil {
		return 0
	}
	return s.AddAll(other.ToSlice()...)
}
