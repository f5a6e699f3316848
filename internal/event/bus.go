// Package event is the in-process publish/subscribe bus that fans engine
// state changes out to the live feed, metrics and the alert forwarder.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one message on the bus.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler receives events. Handlers run on the publisher's goroutine for
// Publish and on a fresh goroutine for PublishAsync.
type Handler func(ctx context.Context, e Event)

// Publisher is implemented by anything events can be sent to.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAsync(ctx context.Context, e Event)
}

// Subscriber is implemented by anything handlers can be attached to.
type Subscriber interface {
	Subscribe(topic string, h Handler) func()
	SubscribeAll(h Handler) func()
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous in-memory event bus with panic isolation between
// handlers.
type Bus struct {
	mu       sync.RWMutex
	topics   map[string][]subscription
	wildcard []subscription
	nextID   uint64
	logger   *zap.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]subscription),
		logger: logger,
	}
}

// Publish delivers e to every matching handler before returning.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, h := range b.handlersFor(e.Topic) {
		b.dispatch(ctx, h, e)
	}
	return nil
}

// PublishAsync delivers e to every matching handler, each on its own
// goroutine.
func (b *Bus) PublishAsync(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, h := range b.handlersFor(e.Topic) {
		go b.dispatch(ctx, h, e)
	}
}

// Subscribe registers h for one topic and returns its unsubscribe func.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.topics[topic] = remove(b.topics[topic], id)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}
}

// SubscribeAll registers h for every topic.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = remove(b.wildcard, id)
	}
}

func (b *Bus) handlersFor(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.topics[topic]
	out := make([]Handler, 0, len(subs)+len(b.wildcard))
	for _, s := range subs {
		out = append(out, s.handler)
	}
	for _, s := range b.wildcard {
		out = append(out, s.handler)
	}
	return out
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}

func remove(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
