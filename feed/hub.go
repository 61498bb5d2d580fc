package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/labstack/gommon/log"
)

const defaultBuffer = 256

type subscriber struct {
	topics []string
	send   chan Event
	closed bool
}

// Hub is the in-process Broker. A single Run goroutine owns the topic table;
// subscribers that cannot keep up are dropped and their channel closed.
type Hub struct {
	topics     map[string]map[*subscriber]bool
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan Event
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	buffer     int
	mu         sync.Mutex
}

var _ Broker = (*Hub)(nil)

// NewHub returns a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		topics:     make(map[string]map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan Event),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		buffer:     buffer,
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			for _, t := range s.topics {
				if h.topics[t] == nil {
					h.topics[t] = make(map[*subscriber]bool)
				}
				h.topics[t][s] = true
			}
			h.mu.Unlock()

		case s := <-h.unregister:
			h.mu.Lock()
			h.drop(s)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for s := range h.topics[ev.Topic] {
				select {
				case s.send <- ev:
				default:
					log.Warnf("[Hub] dropping slow subscriber on %s", ev.Topic)
					h.drop(s)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for _, subs := range h.topics {
				for s := range subs {
					h.drop(s)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(s *subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	for _, t := range s.topics {
		delete(h.topics[t], s)
		if len(h.topics[t]) == 0 {
			delete(h.topics, t)
		}
	}
	close(s.send)
}

// Stop ends Run and closes every subscriber channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("feed: subscribe needs at least one topic")
	}
	s := &subscriber{topics: topics, send: make(chan Event, h.buffer)}
	select {
	case h.register <- s:
	case <-h.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return NewSubscription(ctx, s.send, func() {
		select {
		case h.unregister <- s:
		case <-h.quit:
		}
	}), nil
}

// Subscribers counts live subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
