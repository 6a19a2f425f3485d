// Package stream provides a small typed fan-out broadcaster. Every event
// source the feed reacts to (auth status, identity, refresh triggers,
// published feed state) is exposed as a Broadcaster.
package stream

import "sync"

const defaultBuffer = 16

// Broadcaster delivers published values to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the value.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a Broadcaster whose subscriptions buffer up to
// buffer values. A buffer <= 0 uses the default.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscription. Subscribing to a closed
// Broadcaster returns an already-closed subscription.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{
		c:     make(chan T, b.buffer),
		owner: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.c) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish sends v to every subscriber and reports how many received it.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for sub := range b.subs {
		select {
		case sub.c <- v:
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of active subscriptions.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later Publish calls are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.c) })
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	sub.once.Do(func() { close(sub.c) })
}

// Subscription is one consumer's view of a Broadcaster.
type Subscription[T any] struct {
	c     chan T
	owner *Broadcaster[T]
	once  sync.Once
}

// C returns the channel values are delivered on. It is closed once the
// subscription ends. A nil Subscription returns a nil channel, which never
// delivers.
func (s *Subscription[T]) C() <-chan T {
	if s == nil {
		return nil
	}
	return s.c
}

// Unsubscribe releases the subscription. It is safe to call more than once
// and on a nil Subscription.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil {
		return
	}
	s.owner.remove(s)
}
