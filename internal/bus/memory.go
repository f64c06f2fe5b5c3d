package bus

import (
	"context"
	"sync"

	"kakioki/internal/domain"
)

// MemoryBus is an in-process RealtimeBus. Publish blocks until every
// subscriber has taken the message or closed.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	var targets []*memorySub
	for s := range b.subs {
		if _, ok := s.topics[topic]; ok {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	msg := domain.BusMessage{Topic: topic, Payload: append([]byte(nil), payload...)}
	for _, s := range targets {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) (domain.Subscription, error) {
	s := &memorySub{
		bus:    b,
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan domain.BusMessage, 64),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

type memorySub struct {
	bus    *MemoryBus
	topics map[string]struct{}
	ch     chan domain.BusMessage
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) Messages() <-chan domain.BusMessage { return s.ch }

// Close stops delivery. Messages channel is not closed so a concurrent
// Publish cannot panic; readers select on their own context.
func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}

var _ domain.RealtimeBus = (*MemoryBus)(nil)
