package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kakioki/internal/bus"
	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/services/cipher"
	"kakioki/internal/services/conversation"
)

// KeyFunc returns the shared key for the active conversation.
type KeyFunc func(ctx context.Context) (domain.SharedKey, error)

// Router routes one thread's realtime events into a Conversation.
type Router struct {
	log     *zap.Logger
	bus     domain.RealtimeBus
	store   domain.PersistenceService
	key     KeyFunc
	cipher  *cipher.Service
	conv    *conversation.Conversation
	metrics *metrics.Metrics

	mu       sync.Mutex
	threadID domain.ThreadID
	sub      domain.Subscription
	stop     context.CancelFunc
	inflight context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a stopped router.
func New(
	log *zap.Logger,
	b domain.RealtimeBus,
	store domain.PersistenceService,
	key KeyFunc,
	c *cipher.Service,
	conv *conversation.Conversation,
	m *metrics.Metrics,
) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cipher.New(log, m)
	}
	return &Router{
		log:     log,
		bus:     b,
		store:   store,
		key:     key,
		cipher:  c,
		conv:    conv,
		metrics: metrics.OrNop(m),
	}
}

// Start subscribes to threadID's topics, replacing any previous
// subscription. Events are handled until Stop or ctx is done.
func (r *Router) Start(ctx context.Context, threadID domain.ThreadID) error {
	r.Stop()

	sub, err := r.bus.Subscribe(ctx, bus.Topics(threadID)...)
	if err != nil {
		return fmt.Errorf("subscribe to thread %s: %w", threadID, err)
	}
	loopCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.threadID = threadID
	r.sub = sub
	r.stop = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(loopCtx, threadID, sub)
	r.log.Debug("realtime router started", zap.String("thread_id", threadID.String()))
	return nil
}

// Stop unsubscribes and cancels in-flight work. It is safe to call on a
// stopped router.
func (r *Router) Stop() {
	r.mu.Lock()
	sub, stop, inflight := r.sub, r.stop, r.inflight
	r.sub, r.stop, r.inflight = nil, nil, nil
	r.threadID = ""
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if inflight != nil {
		inflight()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			r.log.Warn("realtime unsubscribe failed", zap.Error(err))
		}
	}
	r.wg.Wait()
}

// ThreadID returns the thread currently routed, or "" when stopped.
func (r *Router) ThreadID() domain.ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threadID
}

func (r *Router) loop(ctx context.Context, threadID domain.ThreadID, sub domain.Subscription) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			r.handle(ctx, threadID, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, threadID domain.ThreadID, msg domain.BusMessage) {
	evt, err := bus.DecodeEvent(msg.Payload)
	if err != nil {
		r.log.Warn("dropping realtime payload", zap.String("topic", msg.Topic), zap.Error(err))
		r.count("unknown", "dropped")
		return
	}
	if evt.Thread() != threadID {
		r.count(string(evt.Kind()), "ignored")
		return
	}

	switch e := evt.(type) {
	case domain.MessageEvent:
		r.dispatchMessage(ctx, threadID, e)
	case domain.StatusEvent:
		if r.conv.ApplyStatus(e.ClientMessageID, e.Status) {
			r.count(string(e.Kind()), "applied")
		} else {
			r.count(string(e.Kind()), "deferred")
		}
	case domain.ControlEvent:
		if !r.conv.ApplyBlockControl(e) {
			r.count(string(e.Kind()), "ignored")
			return
		}
		r.count(string(e.Kind()), "applied")
		if e.Kind() == domain.EventRemoved {
			r.log.Info("conversation removed", zap.String("thread_id", threadID.String()))
			r.mu.Lock()
			sub := r.sub
			r.sub = nil
			if r.stop != nil {
				r.stop()
			}
			r.mu.Unlock()
			if sub != nil {
				if err := sub.Close(); err != nil {
					r.log.Warn("realtime unsubscribe failed", zap.Error(err))
				}
			}
		}
	}
}

// dispatchMessage handles e on its own goroutine, cancelling the previous
// message event.
func (r *Router) dispatchMessage(ctx context.Context, threadID domain.ThreadID, e domain.MessageEvent) {
	evtCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	prev := r.inflight
	r.inflight = cancel
	r.mu.Unlock()
	if prev != nil {
		prev()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		outcome := r.handleMessage(evtCtx, threadID, e)
		r.count(string(domain.EventMessage), outcome)
	}()
}

func (r *Router) handleMessage(ctx context.Context, threadID domain.ThreadID, e domain.MessageEvent) string {
	rec := e.Record()
	if !e.Full() {
		stored, err := r.store.FetchMessage(ctx, threadID, e.ClientMessageID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return "cancelled"
			}
			r.log.Warn("refetch of trimmed message failed",
				zap.String("client_message_id", e.ClientMessageID), zap.Error(err))
			return "error"
		}
		if stored == nil {
			return "dropped"
		}
		rec = *stored
	}

	key, err := r.key(ctx)
	if ctx.Err() != nil {
		return "cancelled"
	}
	if err != nil {
		r.log.Warn("realtime message key unavailable",
			zap.String("client_message_id", e.ClientMessageID), zap.Error(err))
		return "error"
	}

	msg := r.cipher.DecryptRecord(key, rec)
	if ctx.Err() != nil {
		return "cancelled"
	}
	if r.conv.ThreadID() != threadID {
		return "ignored"
	}
	r.conv.Merge(msg)
	return "applied"
}

func (r *Router) count(kind, outcome string) {
	r.metrics.RealtimeEvents.WithLabelValues(kind, outcome).Inc()
}
