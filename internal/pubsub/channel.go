package pubsub

import (
	"sync"
)

type Sender[T any] interface {
	// Send delivers msg, blocking while the buffer is full. Returns false if the receiving end is closed.
	Send(msg T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
	// Closed is closed as soon as Close is called, before buffered messages are drained.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel is a chan that can be sent on and closed concurrently: a Send that races Close either delivers its message
// or returns false.
type channel[T any] struct {
	ch      chan T
	closing chan struct{}
	mu      sync.RWMutex
	closed  bool
	senders sync.WaitGroup
}

func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:      make(chan T, bufSize),
		closing: make(chan struct{}),
	}
}

// Receive is closed after Close, once buffered messages have been received.
func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

func (c *channel[T]) Send(msg T) bool {
	if !c.enter() {
		return false
	}
	defer c.senders.Done()
	select {
	case c.ch <- msg:
		return true
	case <-c.closing:
		return false
	}
}

// enter registers a sender, unless the channel is already closed. Close waits for registered senders before closing
// c.ch, so they can never send on a closed chan.
func (c *channel[T]) enter() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.senders.Add(1)
	return true
}

func (c *channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.closing)
	c.senders.Wait()
	close(c.ch)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.closing
}
