package sync_

import (
	"errors"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

var _ Mutexer[int] = NewMutexed(123)
var _ Mutexer[int] = NewRWMutexed(123)

func TestMutexed(t *testing.T) {
	assert := assert_.New(t)
	for name, m := range map[string]Mutexer[[]string]{
		"Mutexed":   NewMutexed([]string{"a"}),
		"RWMutexed": NewRWMutexed([]string{"a"}),
	} {
		assert.Equal([]string{"a"}, m.Get(), name)
		assert.Equal([]string{"a"}, m.Swap([]string{"b"}), name)
		m.Set(append(m.Get(), "c"))
		assert.Equal([]string{"b", "c"}, m.Get(), name)

		failed := errors.New("failed")
		assert.ErrorIs(m.Locked(func(v *[]string) error {
			*v = nil
			return failed
		}), failed, name)
		assert.Nil(m.Get(), name)
	}
}

func TestRWMutexed_Concurrent(t *testing.T) {
	assert := assert_.New(t)
	rw := NewRWMutexed(0)
	start := NewEvent()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 100; j++ {
				_ = rw.Locked(func(v *int) error {
					*v++
					return nil
				})
			}
		}()
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 100; j++ {
				_ = rw.RLocked(func(v int) error { return nil })
			}
		}()
	}

	start.Set()
	wg.Wait()
	assert.Equal(2000, rw.Get())
}
