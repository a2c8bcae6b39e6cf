package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 1
	DefaultSubscriberBufSize = 1
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher fans each sent message out to every subscriber. Subscribers that have been closed are dropped on the
// next message.
type Publisher[T any] interface {
	SenderCloser[T]
	// AddSubscriber adds an existing channel as a subscriber; if closeOnClose is true, it is closed along with the
	// Publisher.
	AddSubscriber(s SenderCloser[T], closeOnClose bool) error
	Subscribe() (ReceiverCloser[T], error)
	SubscribeBufSize(int) (ReceiverCloser[T], error)
}

type subscriber[T any] struct {
	SenderCloser[T]
	closeOnClose bool
}

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup // Goroutines in progress
	pending     sync.WaitGroup // Messages not yet sent to all subscribers
	subscribers *sync_.Mutexed[generic.Set[subscriber[T]]]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch: NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(generic.NewKeyedSet(func(s subscriber[T]) SenderCloser[T] {
			return s.SenderCloser
		})),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for v := range p.ch.Receive() {
			// Take a snapshot of subscribers, to avoid holding a lock that prevents adding new subscribers
			for _, s := range p.snapshot(false) {
				if ok := s.Send(v); !ok {
					p.unsubscribe(s)
				}
			}
			p.pending.Done()
		}
	}()
	return p
}

// Send will publish the value to all subscribers (non-blocking unless the publisher buffer is full).
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if ok := p.ch.Send(msg); !ok {
		// Message was not sent, so don't wait for it
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *publisher[T]) SubscribeBufSize(bufSize int) (ReceiverCloser[T], error) {
	s := NewChannel[T](bufSize)
	if err := p.AddSubscriber(s, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T], closeOnClose bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers *generic.Set[subscriber[T]]) error {
		(*subscribers).Add(subscriber[T]{SenderCloser: s, closeOnClose: closeOnClose})
		return nil
	})
}

func (p *publisher[T]) unsubscribe(s subscriber[T]) {
	_ = p.subscribers.Locked(func(subscribers *generic.Set[subscriber[T]]) error {
		(*subscribers).Remove(s)
		return nil
	})
}

func (p *publisher[T]) snapshot(clear bool) (list []subscriber[T]) {
	_ = p.subscribers.Locked(func(subscribers *generic.Set[subscriber[T]]) error {
		list = (*subscribers).ToSlice()
		if clear {
			(*subscribers).Clear()
		}
		return nil
	})
	return list
}

// Close idempotently shuts down the publisher, closing subscribers that asked for it.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	// Close the send channel, and wait for the channel to be flushed
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	for _, s := range p.snapshot(true) {
		if s.closeOnClose {
			s.Close()
		}
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
