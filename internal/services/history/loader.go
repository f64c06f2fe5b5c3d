package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/services/cipher"
	"kakioki/internal/services/conversation"
)

// LoadFailedMessage is shown when a page cannot be fetched.
const LoadFailedMessage = "Unable to load conversation"

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	defaultWorkers  = 8
)

// KeyFunc returns the shared key for the active conversation.
type KeyFunc func(ctx context.Context) (domain.SharedKey, error)

// Options tunes a Loader.
type Options struct {
	PageSize int
	Workers  int
}

// Loader fetches and decrypts history pages for one Conversation.
type Loader struct {
	log     *zap.Logger
	store   domain.PersistenceService
	key     KeyFunc
	cipher  *cipher.Service
	conv    *conversation.Conversation
	metrics *metrics.Metrics
	opts    Options

	seq    atomic.Uint64
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a Loader. PageSize is clamped to 1..MaxPageSize with
// DefaultPageSize for zero.
func New(
	log *zap.Logger,
	store domain.PersistenceService,
	key KeyFunc,
	c *cipher.Service,
	conv *conversation.Conversation,
	m *metrics.Metrics,
	opts Options,
) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cipher.New(log, m)
	}
	opts.PageSize = ClampPageSize(opts.PageSize)
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Loader{
		log:     log,
		store:   store,
		key:     key,
		cipher:  c,
		conv:    conv,
		metrics: metrics.OrNop(m),
		opts:    opts,
	}
}

// ClampPageSize bounds n to 1..MaxPageSize, treating zero or less as the default.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// Load fetches the newest page of threadID, which replaces the
// conversation's messages, or the page after the given cursor, which is
// merged into them. It returns domain.ErrStale when the result was
// discarded.
func (l *Loader) Load(ctx context.Context, threadID domain.ThreadID, after *time.Time) error {
	seq := l.seq.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	prev := l.cancel
	l.cancel = cancel
	l.mu.Unlock()
	if prev != nil {
		prev()
	}

	friend := l.conv.Friend()
	expected := threadID
	stale := func() bool {
		if ctx.Err() != nil || l.seq.Load() != seq || l.conv.Friend() != friend {
			return true
		}
		cur := l.conv.ThreadID()
		return cur != "" && cur != expected
	}

	l.conv.SetLoading(true)
	defer func() {
		// A cancelled ctx still owns the flag unless a newer load took over.
		if l.seq.Load() == seq && l.conv.Friend() == friend {
			l.conv.SetLoading(false)
		}
	}()

	page, err := l.store.FetchHistory(ctx, threadID, domain.HistoryQuery{Limit: l.opts.PageSize, After: after})
	if stale() {
		return l.discard(threadID)
	}
	if err != nil {
		return l.fail(threadID, LoadFailedMessage, fmt.Errorf("fetch history: %w", err))
	}

	key, err := l.key(ctx)
	if stale() {
		return l.discard(threadID)
	}
	if err != nil {
		return l.fail(threadID, domain.UserMessage(err), err)
	}

	msgs, err := l.decrypt(ctx, key, page.Messages)
	if err != nil || stale() {
		return l.discard(threadID)
	}

	if page.Thread.ThreadID != "" {
		expected = page.Thread.ThreadID
	}
	l.conv.BindThread(expected)
	if b := page.Thread.Block; b != nil {
		l.conv.SetBlockState(domain.BlockState{
			BlockedBySelf:   b.BlockedBySelf,
			BlockedByFriend: b.BlockedByOther,
			CreatedAt:       b.CreatedAt,
		})
	}
	if after == nil {
		l.conv.Seed(msgs)
	} else {
		l.conv.MergeBatch(msgs)
	}
	l.conv.SetHasMore(len(page.Messages) >= l.opts.PageSize)
	l.metrics.HistoryLoads.WithLabelValues("ok").Inc()
	l.log.Debug("history loaded",
		zap.String("thread_id", expected.String()),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

// Cancel abandons any load in flight and clears the loading flag.
func (l *Loader) Cancel() {
	l.seq.Add(1)
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		l.conv.SetLoading(false)
	}
}

func (l *Loader) decrypt(ctx context.Context, key domain.SharedKey, records []domain.MessageRecord) ([]domain.ChatMessage, error) {
	out := make([]domain.ChatMessage, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = l.cipher.DecryptRecord(key, records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) discard(threadID domain.ThreadID) error {
	l.metrics.HistoryLoads.WithLabelValues("stale").Inc()
	l.log.Debug("stale history load discarded", zap.String("thread_id", threadID.String()))
	return domain.ErrStale
}

func (l *Loader) fail(threadID domain.ThreadID, msg string, err error) error {
	l.metrics.HistoryLoads.WithLabelValues("error").Inc()
	l.log.Warn("history load failed", zap.String("thread_id", threadID.String()), zap.Error(err))
	l.conv.SetError(msg)
	return err
}
