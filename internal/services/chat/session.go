package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/services/cipher"
	"kakioki/internal/services/conversation"
	"kakioki/internal/services/history"
	"kakioki/internal/services/router"
	"kakioki/internal/services/sharedkey"
)

var (
	// ErrNoFriend is returned when no conversation is open.
	ErrNoFriend = errors.New("friend not selected")
	// ErrEmptyMessage is returned for a send with neither text nor media.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoThread is returned for thread operations before a thread exists.
	ErrNoThread = errors.New("conversation has no thread")
	// ErrNotRetryable is returned when retrying a message that is not one of
	// this user's failed sends.
	ErrNotRetryable = errors.New("only failed outgoing messages can be retried")
)

// NewClientMessageID returns a fresh client-side message id.
func NewClientMessageID() string { return uuid.NewString() }

// Options configures a Session.
type Options struct {
	PageSize int
	// Clock overrides time.Now.
	Clock func() time.Time
	// Outbox keeps failed sends across processes. Nil keeps them in memory only.
	Outbox domain.OutboxStore
}

// SendOptions carries the optional parts of a message.
type SendOptions struct {
	Media    []domain.MediaItem
	Links    []string
	Previews []domain.LinkPreview
	Extras   map[string]any
}

// Session is one user's conversation with one friend at a time.
type Session struct {
	log     *zap.Logger
	self    domain.UserID
	store   domain.PersistenceService
	keys    *sharedkey.Service
	bus     domain.RealtimeBus
	friends domain.FriendStore
	outbox  domain.OutboxStore
	metrics *metrics.Metrics
	clock   func() time.Time

	cipher  *cipher.Service
	conv    *conversation.Conversation
	router  *router.Router
	history *history.Loader

	bg     context.Context
	stopBg context.CancelFunc

	mu     sync.Mutex
	friend *domain.Friend
}

// New returns a session for self. rb and friends may be nil, which disables
// realtime updates and friend caching respectively.
func New(
	log *zap.Logger,
	self domain.UserID,
	store domain.PersistenceService,
	keys *sharedkey.Service,
	rb domain.RealtimeBus,
	friends domain.FriendStore,
	m *metrics.Metrics,
	opts Options,
) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	m = metrics.OrNop(m)
	s := &Session{
		log:     log,
		self:    self,
		store:   store,
		keys:    keys,
		bus:     rb,
		friends: friends,
		outbox:  opts.Outbox,
		metrics: m,
		clock:   opts.Clock,
		cipher:  cipher.New(log, m),
		conv:    conversation.New(self),
	}
	s.bg, s.stopBg = context.WithCancel(context.Background())
	s.history = history.New(log, store, s.sharedKey, s.cipher, s.conv, m, history.Options{PageSize: opts.PageSize})
	if rb != nil {
		s.router = router.New(log, rb, store, s.sharedKey, s.cipher, s.conv, m)
	}
	return s
}

// Conversation exposes the session's state for rendering.
func (s *Session) Conversation() *conversation.Conversation { return s.conv }

// Friend returns a copy of the open friend.
func (s *Session) Friend() (domain.Friend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friend == nil {
		return domain.Friend{}, false
	}
	return *s.friend, true
}

// Open switches the session to friend: state is reset, the known thread and
// block flags are seeded, history is loaded, failed sends from the outbox
// are restored and realtime routing starts.
func (s *Session) Open(ctx context.Context, friend domain.Friend) error {
	s.history.Cancel()
	if s.router != nil {
		s.router.Stop()
	}

	s.mu.Lock()
	f := friend
	s.friend = &f
	s.mu.Unlock()

	s.conv.Reset(friend.UserID)
	s.conv.SetBlockState(domain.BlockState{
		BlockedBySelf:   friend.BlockedBySelf,
		BlockedByFriend: friend.BlockedByFriend,
		CreatedAt:       friend.BlockCreatedAt,
	})
	if friend.ThreadID == "" {
		s.restorePending(ctx)
		return nil
	}
	s.conv.BindThread(friend.ThreadID)
	err := s.LoadLatest(ctx)
	s.startRealtime(s.conv.ThreadID())
	return err
}

// EnsureThread returns the bound thread, asking the persistence service to
// create one when none is bound yet.
func (s *Session) EnsureThread(ctx context.Context) (domain.ThreadID, error) {
	if id := s.conv.ThreadID(); id != "" {
		return id, nil
	}
	f, ok := s.Friend()
	if !ok {
		return "", ErrNoFriend
	}
	t, err := s.store.OpenThread(ctx, f.UserID)
	if err != nil {
		return "", fmt.Errorf("open thread: %w", err)
	}
	s.adoptThread(t.ThreadID)
	return t.ThreadID, nil
}

// LoadLatest reloads the newest history page of the bound thread. The page
// replaces the message list, so pending failed sends are merged back after.
func (s *Session) LoadLatest(ctx context.Context) error {
	id := s.conv.ThreadID()
	if id == "" {
		return nil
	}
	err := s.history.Load(ctx, id, nil)
	if errors.Is(err, domain.ErrStale) {
		return nil
	}
	if err == nil {
		s.restorePending(ctx)
	}
	return err
}

// LoadAfter loads the page that follows the given createdAt cursor.
func (s *Session) LoadAfter(ctx context.Context, after time.Time) error {
	id := s.conv.ThreadID()
	if id == "" {
		return ErrNoThread
	}
	err := s.history.Load(ctx, id, &after)
	if errors.Is(err, domain.ErrStale) {
		return nil
	}
	return err
}

// Send encrypts and sends text with optional attachments. The returned
// message is the reconciled local copy.
func (s *Session) Send(ctx context.Context, text string, opts SendOptions) (domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" && len(opts.Media) == 0 {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	now := s.clock().UTC()
	return s.send(ctx, text, outgoing{
		id:        NewClientMessageID(),
		createdAt: now,
		metadata: domain.MessageMetadata{
			Links:    opts.Links,
			Previews: opts.Previews,
			Extras:   opts.Extras,
		},
		media: opts.Media,
	})
}

// Retry resends one of this user's failed messages with its original id,
// creation time and metadata. Only messages whose plaintext is held can be
// retried.
func (s *Session) Retry(ctx context.Context, clientMessageID string) (domain.ChatMessage, error) {
	msg, ok := s.conv.Message(clientMessageID)
	if !ok || msg.Plaintext == nil {
		return domain.ChatMessage{}, domain.ErrMessageNotFound
	}
	if msg.SenderID != s.self || msg.State != domain.StateError {
		return domain.ChatMessage{}, ErrNotRetryable
	}
	msg, ok = s.conv.MarkSending(clientMessageID)
	if !ok {
		return domain.ChatMessage{}, ErrNotRetryable
	}
	md := msg.Metadata.Clone()
	md.Media = nil
	return s.send(ctx, *msg.Plaintext, outgoing{
		id:        clientMessageID,
		createdAt: msg.CreatedAt,
		metadata:  md,
		media:     cipher.MediaToUploaded(msg.Media),
		status:    domain.StatusMetadata{Retries: msg.Status.Retries, Extras: msg.Status.Extras},
		retry:     true,
	})
}

type outgoing struct {
	id        string
	createdAt time.Time
	metadata  domain.MessageMetadata
	media     []domain.MediaItem
	status    domain.StatusMetadata
	retry     bool
}

func (s *Session) send(ctx context.Context, text string, out outgoing) (domain.ChatMessage, error) {
	f, ok := s.Friend()
	if !ok {
		return domain.ChatMessage{}, ErrNoFriend
	}
	if s.conv.IsBlocked() {
		s.metrics.Sends.WithLabelValues("blocked").Inc()
		s.conv.MarkFailed(out.id, "blocked", domain.UserMessage(domain.ErrBlocked))
		s.conv.SetError(domain.UserMessage(domain.ErrBlocked))
		return domain.ChatMessage{}, domain.ErrBlocked
	}

	key, err := s.sharedKey(ctx)
	if err != nil {
		s.metrics.Sends.WithLabelValues("error").Inc()
		s.conv.MarkFailed(out.id, errorCode(err), domain.UserMessage(err))
		s.conv.SetError(domain.UserMessage(err))
		return domain.ChatMessage{}, err
	}

	md := out.metadata.Clone()
	var local []domain.DecryptedMedia
	if len(out.media) > 0 {
		md.Media, local = s.cipher.EncryptMedia(key, out.media)
		if len(md.Media) == 0 {
			err := errors.New("unable to prepare media attachments")
			s.conv.MarkFailed(out.id, "media", err.Error())
			return domain.ChatMessage{}, err
		}
	}
	ct, nonce, err := cipher.EncryptText(key, text)
	if err != nil {
		s.conv.MarkFailed(out.id, errorCode(err), err.Error())
		return domain.ChatMessage{}, err
	}

	createdAt := out.createdAt
	sentAt := createdAt
	optimistic := domain.ChatMessage{
		ClientMessageID: out.id,
		SenderID:        s.self,
		Ciphertext:      ct,
		Nonce:           nonce,
		Plaintext:       &text,
		Metadata:        md,
		Media:           local,
		Status:          out.status.Clone(),
		CreatedAt:       createdAt,
		State:           domain.StateSending,
	}
	optimistic.Status.Delivery = domain.DeliverySending
	optimistic.Status.SentAt = &sentAt
	s.conv.Merge(optimistic)

	res, err := s.store.SendMessage(ctx, domain.SendRequest{
		ThreadID:        s.conv.ThreadID(),
		ToUserID:        f.UserID,
		ClientMessageID: out.id,
		Ciphertext:      ct,
		Nonce:           nonce,
		Metadata:        md,
		Status:          out.status,
		CreatedAt:       &createdAt,
	})
	if err != nil {
		s.metrics.Sends.WithLabelValues("error").Inc()
		s.log.Warn("send failed", zap.String("client_message_id", out.id), zap.Error(err))
		s.conv.MarkFailed(out.id, errorCode(err), domain.UserMessage(err))
		if errors.Is(err, domain.ErrBlocked) {
			s.conv.SetError(domain.UserMessage(err))
		}
		msg, _ := s.conv.Message(out.id)
		s.savePending(f.UserID, msg)
		return msg, err
	}

	if out.retry {
		s.dropPending(f.UserID, out.id)
	}
	if res.ThreadID != "" {
		s.adoptThread(res.ThreadID)
	}
	s.conv.Merge(s.cipher.DecryptRecord(key, res.Message))
	s.metrics.Sends.WithLabelValues("ok").Inc()
	msg, _ := s.conv.Message(out.id)
	return msg, nil
}

// MarkAsRead reports the given messages as read and applies the change locally.
func (s *Session) MarkAsRead(ctx context.Context, clientMessageIDs []string) error {
	id := s.conv.ThreadID()
	if id == "" || len(clientMessageIDs) == 0 {
		return nil
	}
	_, err := s.store.UpdateStatus(ctx, domain.StatusRequest{
		ThreadID:   id,
		MessageIDs: clientMessageIDs,
		Status:     domain.StatusMetadata{Delivery: domain.DeliveryRead},
	})
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	now := s.clock().UTC()
	for _, cid := range clientMessageIDs {
		s.conv.ApplyStatus(cid, domain.StatusMetadata{Delivery: domain.DeliveryRead, ReadAt: &now})
	}
	return nil
}

// MarkIncomingRead marks every friend message not yet read and returns how many.
func (s *Session) MarkIncomingRead(ctx context.Context) (int, error) {
	var ids []string
	for _, m := range s.conv.Messages() {
		if m.SenderID != s.self && m.Status.Delivery != domain.DeliveryRead {
			ids = append(ids, m.ClientMessageID)
		}
	}
	return len(ids), s.MarkAsRead(ctx, ids)
}

// Block blocks the open friend.
func (s *Session) Block(ctx context.Context) error {
	res, err := s.control(ctx, s.store.Block)
	if err != nil {
		return fmt.Errorf("block: %w", err)
	}
	s.adoptThread(res.ThreadID)
	s.conv.SetBlockedBySelf(true, s.clock().UTC())
	s.persistFriend()
	return nil
}

// Unblock lifts this user's block on the open friend.
func (s *Session) Unblock(ctx context.Context) error {
	res, err := s.control(ctx, s.store.Unblock)
	if err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	s.adoptThread(res.ThreadID)
	s.conv.SetBlockedBySelf(false, time.Time{})
	s.persistFriend()
	return nil
}

// Remove deletes the conversation for both sides, including any failed
// sends still waiting in the outbox.
func (s *Session) Remove(ctx context.Context) error {
	if _, err := s.control(ctx, s.store.Remove); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if s.router != nil {
		s.router.Stop()
	}
	s.history.Cancel()
	for _, m := range s.conv.Messages() {
		if m.State == domain.StateError && m.SenderID == s.self {
			s.dropPending(s.conv.Friend(), m.ClientMessageID)
		}
	}
	s.conv.Clear()
	s.persistFriend()
	return nil
}

func (s *Session) control(
	ctx context.Context,
	fn func(context.Context, domain.ControlRequest) (domain.ControlResult, error),
) (domain.ControlResult, error) {
	f, ok := s.Friend()
	if !ok {
		return domain.ControlResult{}, ErrNoFriend
	}
	return fn(ctx, domain.ControlRequest{ThreadID: s.conv.ThreadID(), TargetUserID: f.UserID})
}

// Close stops realtime routing and abandons in-flight loads.
func (s *Session) Close() {
	s.history.Cancel()
	if s.router != nil {
		s.router.Stop()
	}
	s.stopBg()
}

// sharedKey resolves the open friend's key, recording a refreshed peer key.
func (s *Session) sharedKey(ctx context.Context) (domain.SharedKey, error) {
	f, ok := s.Friend()
	if !ok {
		return domain.SharedKey{}, ErrNoFriend
	}
	before := f.PublicKey
	key, err := s.keys.Resolve(ctx, s.self, &f)
	if err != nil {
		return domain.SharedKey{}, err
	}
	if f.PublicKey != before {
		s.mu.Lock()
		if s.friend != nil && s.friend.UserID == f.UserID {
			s.friend.PublicKey = f.PublicKey
		}
		s.mu.Unlock()
		s.persistFriend()
	}
	return key, nil
}

// adoptThread binds id and restarts realtime routing when it changed.
func (s *Session) adoptThread(id domain.ThreadID) {
	if id == "" || !s.conv.BindThread(id) {
		return
	}
	s.persistFriend()
	s.startRealtime(id)
}

func (s *Session) startRealtime(id domain.ThreadID) {
	if s.router == nil || id == "" {
		return
	}
	if err := s.router.Start(s.bg, id); err != nil {
		s.log.Warn("realtime subscription failed", zap.String("thread_id", id.String()), zap.Error(err))
	}
}

// savePending records a failed send in the outbox.
func (s *Session) savePending(friend domain.UserID, msg domain.ChatMessage) {
	if s.outbox == nil || msg.State != domain.StateError {
		return
	}
	if err := s.outbox.SavePending(friend, msg); err != nil {
		s.log.Warn("outbox save failed", zap.String("client_message_id", msg.ClientMessageID), zap.Error(err))
	}
}

func (s *Session) dropPending(friend domain.UserID, clientMessageID string) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.DeletePending(friend, clientMessageID); err != nil {
		s.log.Warn("outbox delete failed", zap.String("client_message_id", clientMessageID), zap.Error(err))
	}
}

// restorePending decrypts the open friend's outbox entries and merges them
// as failed messages. Entries the server has since stored are dropped.
func (s *Session) restorePending(ctx context.Context) {
	f, ok := s.Friend()
	if s.outbox == nil || !ok {
		return
	}
	pending, err := s.outbox.ListPending(f.UserID)
	if err != nil {
		s.log.Warn("outbox read failed", zap.Stringer("friend", f.UserID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	key, err := s.sharedKey(ctx)
	if err != nil {
		s.log.Warn("outbox restore skipped", zap.Stringer("friend", f.UserID), zap.Error(err))
		return
	}

	restored := make([]domain.ChatMessage, 0, len(pending))
	for _, p := range pending {
		if m, ok := s.conv.Message(p.ClientMessageID); ok && m.State != domain.StateError {
			s.dropPending(f.UserID, p.ClientMessageID)
			continue
		}
		msg := s.cipher.DecryptRecord(key, domain.MessageRecord{
			ClientMessageID: p.ClientMessageID,
			FromID:          s.self,
			Ciphertext:      p.Ciphertext,
			Nonce:           p.Nonce,
			Metadata:        p.Metadata,
			StatusMetadata:  p.Status,
			CreatedAt:       p.CreatedAt,
		})
		msg.Error = p.Error
		restored = append(restored, msg)
	}
	s.conv.MergeBatch(restored)
}

// persistFriend writes the open friend's thread binding, key and block
// flags to the friend store.
func (s *Session) persistFriend() {
	if s.friends == nil {
		return
	}
	s.mu.Lock()
	if s.friend == nil {
		s.mu.Unlock()
		return
	}
	b := s.conv.BlockState()
	s.friend.ThreadID = s.conv.ThreadID()
	s.friend.BlockedBySelf = b.BlockedBySelf
	s.friend.BlockedByFriend = b.BlockedByFriend
	s.friend.BlockCreatedAt = b.CreatedAt
	f := *s.friend
	s.mu.Unlock()
	if err := s.friends.SaveFriend(f); err != nil {
		s.log.Warn("persist friend failed", zap.Stringer("friend", f.UserID), zap.Error(err))
	}
}

func errorCode(err error) string {
	switch {
	case domain.IsKeyError(err):
		return "key_unavailable"
	case errors.Is(err, domain.ErrPeerKeyUnavailable):
		return "peer_key_unavailable"
	case errors.Is(err, domain.ErrBlocked):
		return "blocked"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "send_failed"
}
