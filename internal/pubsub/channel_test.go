package pubsub

import (
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestChannel(t *testing.T) {
	assert := assert_.New(t)
	c := NewChannel[int](2)

	assert.True(c.Send(1))
	assert.True(c.Send(2))
	assert.Equal(1, <-c.Receive())

	c.Close()
	select {
	case <-c.Closed():
	default:
		assert.Fail("Closed() should be closed after Close()")
	}
	assert.False(c.Send(3))
	// Buffered messages are still delivered after close
	v, ok := <-c.Receive()
	assert.True(ok)
	assert.Equal(2, v)
	_, ok = <-c.Receive()
	assert.False(ok)
	// Closing should be idempotent
	c.Close()
}

func TestChannel_CloseUnblocksSenders(t *testing.T) {
	assert := assert_.New(t)
	c := NewChannel[int](0)

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- c.Send(i)
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	c.Close()
	wg.Wait()
	close(results)
	for ok := range results {
		assert.False(ok, "unreceived sends should fail once the channel is closed")
	}
}
