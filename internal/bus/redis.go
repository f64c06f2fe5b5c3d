package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kakioki/internal/domain"
)

// RedisBus is a RealtimeBus over Redis pub/sub.
type RedisBus struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

// NewRedisBus returns a bus publishing through rdb.
func NewRedisBus(rdb redis.UniversalClient, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (domain.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	s := &redisSub{
		ps:   ps,
		ch:   make(chan domain.BusMessage, 64),
		done: make(chan struct{}),
	}
	go s.pump(b.log)
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan domain.BusMessage
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump(log *zap.Logger) {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		select {
		case s.ch <- domain.BusMessage{Topic: m.Channel, Payload: []byte(m.Payload)}:
		case <-s.done:
			return
		}
	}
	log.Debug("redis subscription closed")
}

func (s *redisSub) Messages() <-chan domain.BusMessage { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

var _ domain.RealtimeBus = (*RedisBus)(nil)
