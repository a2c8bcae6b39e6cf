package generic

import (
	"sort"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet[int]()
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.True(s.Add(1))
	assert.Equal(1, s.Count())
	assert.True(s.Contains(1))
	assert.False(s.Add(1))
	assert.Equal(1, s.Count())
	assert.True(s.Remove(1))
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.False(s.Remove(1))

	s2 := s.Clone()
	assert.True(s2.Add(1))
	assert.Equal(1, s2.Count())
	assert.False(s.Contains(1))

	s2.Clear()
	assert.False(s2.Contains(1))
	assert.Equal(0, s2.Count())

	s3 := NewSet(1, 2, 3)
	assert.True(s3.Contains(1, 2, 3))
	assert.False(s3.Contains(1, 4))
	items := s3.Clone().ToSlice()
	sort.Ints(items)
	assert.Equal([]int{1, 2, 3}, items)
}

func TestSetInsertionOrder(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet("c", "a", "b", "a")
	assert.Equal([]string{"c", "a", "b"}, s.ToSlice())
	s.Remove("a")
	s.Add("a")
	assert.Equal([]string{"c", "b", "a"}, s.ToSlice())
}

func TestSetUnion(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet(1, 2)
	assert.Equal(1, s.Union(NewSet(2, 3)))
	assert.Equal([]int{1, 2, 3}, s.ToSlice())
	assert.Equal(0, s.Union(nil))
}

func TestKeyedSet(t *testing.T) {
	assert := assert_.New(t)

	type item struct {
		id    int
		label string
		tags  []string
	}
	key := func(i item) int { return i.id }

	s := NewKeyedSet(key, item{id: 1, label: "first"}, item{id: 2, label: "second"})
	assert.False(s.Add(item{id: 1, label: "duplicate"}))
	assert.Equal(2, s.Count())
	// The first item with a given key wins
	assert.Equal("first", s.ToSlice()[0].label)
	assert.True(s.Contains(item{id: 2, tags: []string{"ignored"}}))

	clone := s.Clone()
	assert.True(clone.Add(item{id: 3}))
	assert.False(s.Contains(item{id: 3}))
}
