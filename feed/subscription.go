package feed

import (
	"context"
	"sync"
)

// Subscription is a scoped handle on a stream of events. Callers must Close
// it when they leave scope; it is also closed when the context passed to
// Subscribe is cancelled.
type Subscription struct {
	events <-chan Event
	once   sync.Once
	cancel func()

	mu   sync.Mutex
	stop func() bool
}

// NewSubscription wraps an event channel. cancel runs exactly once, on Close
// or when ctx is done.
func NewSubscription(ctx context.Context, events <-chan Event, cancel func()) *Subscription {
	s := &Subscription{events: events, cancel: cancel}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s
}

// Events is closed after the subscription ends or the subscriber is dropped
// for falling behind.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}
