package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kakioki/internal/bus"
	"kakioki/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampLimit applies the default page size and bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

type pair struct{ a, b domain.UserID }

func pairOf(x, y domain.UserID) pair {
	if x > y {
		x, y = y, x
	}
	return pair{x, y}
}

type threadState struct {
	thread   domain.Thread
	messages []domain.MessageRecord
}

func (t *threadState) find(clientMessageID string) int {
	for i := range t.messages {
		if t.messages[i].ClientMessageID == clientMessageID {
			return i
		}
	}
	return -1
}

// Backend is the in-memory relay store. Every method takes the acting user
// explicitly.
type Backend struct {
	log   *zap.Logger
	pub   *bus.Publisher
	clock func() time.Time

	mu       sync.Mutex
	nextID   int64
	profiles map[domain.UserID]domain.Profile
	threads  map[domain.ThreadID]*threadState
	byPair   map[pair]domain.ThreadID
	blocks   map[pair]time.Time // blocker, blocked
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithPublisher publishes realtime events for every change.
func WithPublisher(p *bus.Publisher) BackendOption { return func(b *Backend) { b.pub = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BackendOption { return func(b *Backend) { b.clock = now } }

func NewBackend(log *zap.Logger, opts ...BackendOption) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Backend{
		log:      log,
		clock:    time.Now,
		profiles: make(map[domain.UserID]domain.Profile),
		threads:  make(map[domain.ThreadID]*threadState),
		byPair:   make(map[pair]domain.ThreadID),
		blocks:   make(map[pair]time.Time),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// PutProfile registers or replaces a user's public profile.
func (b *Backend) PutProfile(p domain.Profile) {
	b.mu.Lock()
	b.profiles[p.UserID] = p
	b.mu.Unlock()
}

func (b *Backend) Profile(_ context.Context, id domain.UserID) (domain.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[id]
	if !ok {
		return domain.Profile{}, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// OpenThread returns the thread between actor and peer, creating it if needed.
func (b *Backend) OpenThread(_ context.Context, actor, peer domain.UserID) (domain.Thread, error) {
	if actor == peer || peer <= 0 {
		return domain.Thread{}, fmt.Errorf("%w: invalid peer", ErrBadRequest)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked(actor, peer).thread, nil
}

func (b *Backend) openLocked(actor, peer domain.UserID) *threadState {
	key := pairOf(actor, peer)
	if id, ok := b.byPair[key]; ok {
		return b.threads[id]
	}
	ts := &threadState{thread: domain.Thread{
		ThreadID:  domain.ThreadID(uuid.NewString()),
		UserAID:   key.a,
		UserBID:   key.b,
		CreatedAt: b.clock().UTC(),
	}}
	b.threads[ts.thread.ThreadID] = ts
	b.byPair[key] = ts.thread.ThreadID
	return ts
}

// resolveLocked finds the thread named by id for actor, falling back to the
// pair (actor, target) when id is empty or unknown.
func (b *Backend) resolveLocked(actor domain.UserID, id domain.ThreadID, target domain.UserID, create bool) (*threadState, domain.UserID, error) {
	if ts, ok := b.threads[id]; ok && id != "" {
		if !ts.thread.Has(actor) {
			return nil, 0, ErrForbidden
		}
		other := ts.thread.Other(actor)
		if target != 0 && target != other {
			return nil, 0, fmt.Errorf("%w: recipient mismatch", ErrBadRequest)
		}
		return ts, other, nil
	}
	if target == 0 {
		return nil, 0, fmt.Errorf("%w: target user missing", ErrBadRequest)
	}
	if target == actor {
		return nil, 0, fmt.Errorf("%w: invalid target", ErrBadRequest)
	}
	if existing, ok := b.byPair[pairOf(actor, target)]; ok {
		return b.threads[existing], target, nil
	}
	if !create {
		return nil, target, ErrNotFound
	}
	return b.openLocked(actor, target), target, nil
}

func (b *Backend) blockLocked(actor, other domain.UserID) domain.ThreadBlock {
	var out domain.ThreadBlock
	if at, ok := b.blocks[pair{actor, other}]; ok {
		out.BlockedBySelf = true
		out.CreatedAt = &at
	}
	if at, ok := b.blocks[pair{other, actor}]; ok {
		out.BlockedByOther = true
		if out.CreatedAt == nil || at.After(*out.CreatedAt) {
			out.CreatedAt = &at
		}
	}
	out.IsBlocked = out.BlockedBySelf || out.BlockedByOther
	return out
}

// History returns a page of threadID in ascending createdAt order. With an
// After cursor the page starts just after it; otherwise it is the newest page.
func (b *Backend) History(_ context.Context, actor domain.UserID, threadID domain.ThreadID, q domain.HistoryQuery) (domain.HistoryPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.threads[threadID]
	if !ok {
		return domain.HistoryPage{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if !ts.thread.Has(actor) {
		return domain.HistoryPage{}, ErrForbidden
	}
	limit := ClampLimit(q.Limit)

	var page []domain.MessageRecord
	if q.After != nil {
		for _, m := range ts.messages {
			if m.CreatedAt.After(*q.After) {
				page = append(page, m)
				if len(page) == limit {
					break
				}
			}
		}
	} else {
		start := len(ts.messages) - limit
		if start < 0 {
			start = 0
		}
		page = append(page, ts.messages[start:]...)
	}
	if page == nil {
		page = []domain.MessageRecord{}
	}

	other := ts.thread.Other(actor)
	block := b.blockLocked(actor, other)
	return domain.HistoryPage{
		Thread: domain.HistoryThread{
			ThreadID:     ts.thread.ThreadID,
			Participants: []domain.UserID{ts.thread.UserAID, ts.thread.UserBID},
			IsFriend:     true,
			Block:        &block,
		},
		Messages: cloneRecords(page),
	}, nil
}

// Message returns one stored record. A missing record is ErrNotFound.
func (b *Backend) Message(_ context.Context, actor domain.UserID, threadID domain.ThreadID, clientMessageID string) (domain.MessageRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.threads[threadID]
	if !ok || !ts.thread.Has(actor) {
		return domain.MessageRecord{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	i := ts.find(clientMessageID)
	if i < 0 {
		return domain.MessageRecord{}, fmt.Errorf("message %s: %w", clientMessageID, ErrNotFound)
	}
	return cloneRecord(ts.messages[i]), nil
}

// Send stores an encrypted message, upserting on client message id, and
// publishes it on the thread's message topic. Only the original sender may
// overwrite a stored message.
func (b *Backend) Send(ctx context.Context, actor domain.UserID, req domain.SendRequest) (domain.SendResult, error) {
	if req.ToUserID <= 0 || req.ClientMessageID == "" || req.Ciphertext == "" || req.Nonce == "" {
		return domain.SendResult{}, fmt.Errorf("%w: missing required fields", ErrBadRequest)
	}
	if req.ToUserID == actor {
		return domain.SendResult{}, fmt.Errorf("%w: cannot message yourself", ErrBadRequest)
	}

	b.mu.Lock()
	ts, other, err := b.resolveLocked(actor, req.ThreadID, req.ToUserID, true)
	if err != nil {
		b.mu.Unlock()
		return domain.SendResult{}, err
	}
	if b.blockLocked(actor, other).IsBlocked {
		b.mu.Unlock()
		return domain.SendResult{}, domain.ErrBlocked
	}

	now := b.clock().UTC()
	status := overlayStatus(domain.StatusMetadata{Delivery: domain.DeliverySent, SentAt: &now}, req.Status)
	rec := domain.MessageRecord{
		ThreadID:        ts.thread.ThreadID,
		ClientMessageID: req.ClientMessageID,
		FromID:          actor,
		ToID:            other,
		Ciphertext:      req.Ciphertext,
		Nonce:           req.Nonce,
		Metadata:        req.Metadata.Clone(),
		StatusMetadata:  status,
		CreatedAt:       now,
	}
	if req.CreatedAt != nil {
		rec.CreatedAt = req.CreatedAt.UTC()
	}
	if i := ts.find(req.ClientMessageID); i >= 0 {
		if ts.messages[i].FromID != actor {
			b.mu.Unlock()
			return domain.SendResult{}, fmt.Errorf("%w: message %s belongs to another user", ErrForbidden, req.ClientMessageID)
		}
		rec.ID = ts.messages[i].ID
		rec.CreatedAt = ts.messages[i].CreatedAt
		ts.messages[i] = rec
	} else {
		b.nextID++
		id := b.nextID
		rec.ID = &id
		ts.messages = append(ts.messages, rec)
		sort.SliceStable(ts.messages, func(i, j int) bool {
			return ts.messages[i].CreatedAt.Before(ts.messages[j].CreatedAt)
		})
	}
	out := cloneRecord(rec)
	b.mu.Unlock()

	b.publish(ctx, "message", func(p *bus.Publisher) error {
		return p.PublishMessage(ctx, domain.MessageEvent{
			Type:            domain.EventMessage,
			ThreadID:        out.ThreadID,
			ClientMessageID: out.ClientMessageID,
			FromID:          out.FromID,
			ToID:            out.ToID,
			Ciphertext:      out.Ciphertext,
			Nonce:           out.Nonce,
			Metadata:        out.Metadata,
			Status:          out.StatusMetadata,
			CreatedAt:       out.CreatedAt,
		})
	})
	return domain.SendResult{ThreadID: out.ThreadID, Message: out}, nil
}

// maxStatusBatch bounds how many messages one status update touches.
const maxStatusBatch = 50

// UpdateStatus overlays req.Status on each named message, stamping
// deliveredAt or readAt when absent, and publishes one status event per
// updated record.
func (b *Backend) UpdateStatus(ctx context.Context, actor domain.UserID, req domain.StatusRequest) ([]domain.MessageRecord, error) {
	if req.ThreadID == "" || len(req.MessageIDs) == 0 {
		return nil, fmt.Errorf("%w: invalid payload", ErrBadRequest)
	}
	update := req.Status.Clone()
	now := b.clock().UTC()
	if update.Delivery == domain.DeliveryDelivered && update.DeliveredAt == nil {
		update.DeliveredAt = &now
	}
	if update.Delivery == domain.DeliveryRead && update.ReadAt == nil {
		update.ReadAt = &now
	}

	b.mu.Lock()
	ts, ok := b.threads[req.ThreadID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("thread %s: %w", req.ThreadID, ErrNotFound)
	}
	if !ts.thread.Has(actor) {
		b.mu.Unlock()
		return nil, ErrForbidden
	}
	ids := req.MessageIDs
	if len(ids) > maxStatusBatch {
		ids = ids[:maxStatusBatch]
	}
	var updated []domain.MessageRecord
	for _, id := range ids {
		i := ts.find(id)
		if id == "" || i < 0 {
			continue
		}
		ts.messages[i].StatusMetadata = overlayStatus(ts.messages[i].StatusMetadata, update)
		updated = append(updated, cloneRecord(ts.messages[i]))
	}
	b.mu.Unlock()

	for _, rec := range updated {
		rec := rec
		b.publish(ctx, "status", func(p *bus.Publisher) error {
			return p.PublishStatus(ctx, domain.StatusEvent{
				ThreadID:        rec.ThreadID,
				ClientMessageID: rec.ClientMessageID,
				ActorID:         actor,
				Status:          rec.StatusMetadata,
				CreatedAt:       rec.CreatedAt,
			})
		})
	}
	return updated, nil
}

// Block records that actor blocks the target.
func (b *Backend) Block(ctx context.Context, actor domain.UserID, req domain.ControlRequest) (domain.ControlResult, error) {
	return b.control(ctx, actor, req, domain.EventBlock)
}

// Unblock lifts actor's block on the target.
func (b *Backend) Unblock(ctx context.Context, actor domain.UserID, req domain.ControlRequest) (domain.ControlResult, error) {
	return b.control(ctx, actor, req, domain.EventUnblock)
}

// Remove deletes the thread between actor and the target with all its messages.
func (b *Backend) Remove(ctx context.Context, actor domain.UserID, req domain.ControlRequest) (domain.ControlResult, error) {
	return b.control(ctx, actor, req, domain.EventRemoved)
}

func (b *Backend) control(ctx context.Context, actor domain.UserID, req domain.ControlRequest, kind domain.EventType) (domain.ControlResult, error) {
	b.mu.Lock()
	ts, target, err := b.resolveLocked(actor, req.ThreadID, req.TargetUserID, true)
	if err != nil {
		b.mu.Unlock()
		return domain.ControlResult{}, err
	}
	now := b.clock().UTC()
	evt := domain.ControlEvent{Type: kind, ThreadID: ts.thread.ThreadID, CreatedAt: now}
	switch kind {
	case domain.EventBlock:
		b.blocks[pair{actor, target}] = now
		evt.BlockerID, evt.BlockedID = actor, target
	case domain.EventUnblock:
		delete(b.blocks, pair{actor, target})
		evt.BlockerID, evt.BlockedID = actor, target
	case domain.EventRemoved:
		delete(b.threads, ts.thread.ThreadID)
		delete(b.byPair, pairOf(actor, target))
		evt.InitiatorID, evt.TargetID = actor, target
	}
	b.mu.Unlock()

	b.log.Info("conversation control",
		zap.String("type", string(kind)),
		zap.String("thread_id", evt.ThreadID.String()),
		zap.Stringer("actor", actor),
		zap.Stringer("target", target),
	)
	b.publish(ctx, string(kind), func(p *bus.Publisher) error { return p.PublishControl(ctx, evt) })
	return domain.ControlResult{ThreadID: evt.ThreadID}, nil
}

// publish runs fn when a publisher is configured. Failures are logged;
// the stored state is authoritative and clients recover it from history.
func (b *Backend) publish(_ context.Context, what string, fn func(*bus.Publisher) error) {
	if b.pub == nil {
		return
	}
	if err := fn(b.pub); err != nil {
		b.log.Warn("realtime publish failed", zap.String("event", what), zap.Error(err))
	}
}

// As returns a view of b acting as user.
func (b *Backend) As(user domain.UserID) *View { return &View{b: b, user: user} }

// overlayStatus applies every field present in next over base.
func overlayStatus(base, next domain.StatusMetadata) domain.StatusMetadata {
	out := base.Clone()
	if next.Delivery != "" {
		out.Delivery = next.Delivery
	}
	if next.SentAt != nil {
		out.SentAt = next.SentAt
	}
	if next.DeliveredAt != nil {
		out.DeliveredAt = next.DeliveredAt
	}
	if next.ReadAt != nil {
		out.ReadAt = next.ReadAt
	}
	if next.ErrorCode != "" {
		out.ErrorCode = next.ErrorCode
	}
	if next.Retries != 0 {
		out.Retries = next.Retries
	}
	if len(next.Extras) > 0 {
		if out.Extras == nil {
			out.Extras = make(map[string]any, len(next.Extras))
		}
		for k, v := range next.Extras {
			out.Extras[k] = v
		}
	}
	return out
}

func cloneRecord(r domain.MessageRecord) domain.MessageRecord {
	out := r
	if r.ID != nil {
		id := *r.ID
		out.ID = &id
	}
	out.Metadata = r.Metadata.Clone()
	out.StatusMetadata = r.StatusMetadata.Clone()
	return out
}

func cloneRecords(in []domain.MessageRecord) []domain.MessageRecord {
	out := make([]domain.MessageRecord, len(in))
	for i, r := range in {
		out[i] = cloneRecord(r)
	}
	return out
}
