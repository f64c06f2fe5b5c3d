package chat_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"kakioki/internal/bus"
	"kakioki/internal/crypto"
	"kakioki/internal/domain"
	"kakioki/internal/relay"
	"kakioki/internal/services/chat"
	"kakioki/internal/services/conversation"
	"kakioki/internal/services/keyvault"
	"kakioki/internal/services/sharedkey"
	"kakioki/internal/store"
)

const (
	aliceID domain.UserID = 1
	bobID   domain.UserID = 2
)

var cheap = crypto.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

type world struct {
	mem     *bus.MemoryBus
	backend *relay.Backend
	pubs    map[domain.UserID]string
	vaults  map[domain.UserID]*keyvault.Vault
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		mem:    bus.NewMemoryBus(),
		pubs:   map[domain.UserID]string{},
		vaults: map[domain.UserID]*keyvault.Vault{},
	}
	w.backend = relay.NewBackend(nil, relay.WithPublisher(bus.NewPublisher(w.mem, nil, nil, 0)))
	for _, id := range []domain.UserID{aliceID, bobID} {
		v := keyvault.New(nil, nil, keyvault.Options{KDF: cheap})
		kp, err := v.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		enc, err := v.EncryptPrivateKey(kp.Private, "pw")
		if err != nil {
			t.Fatalf("EncryptPrivateKey: %v", err)
		}
		if _, err := v.EnsurePrivateKey("pw", enc); err != nil {
			t.Fatalf("EnsurePrivateKey: %v", err)
		}
		w.vaults[id] = v
		w.pubs[id] = crypto.B64URL(kp.Public[:])
		w.backend.PutProfile(domain.Profile{UserID: id, PublicKey: w.pubs[id]})
	}
	return w
}

// session opens a session for self talking to peer. store may wrap the
// relay view; friends may be nil.
func (w *world) session(t *testing.T, self, peer domain.UserID, ps domain.PersistenceService, friends domain.FriendStore) *chat.Session {
	t.Helper()
	return w.sessionWith(t, self, ps, friends, chat.Options{})
}

func (w *world) sessionWith(t *testing.T, self domain.UserID, ps domain.PersistenceService, friends domain.FriendStore, opts chat.Options) *chat.Session {
	t.Helper()
	view := w.backend.As(self)
	if ps == nil {
		ps = view
	}
	keys := sharedkey.New(nil, w.vaults[self], view, nil)
	s := chat.New(nil, self, ps, keys, w.mem, friends, nil, opts)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func plaintexts(msgs []domain.ChatMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Plaintext != nil {
			out = append(out, *m.Plaintext)
		}
	}
	return out
}

func TestSession_SendAndReceive(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	friends := store.NewFriendFileStore(t.TempDir())

	alice := w.session(t, aliceID, bobID, nil, friends)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("alice Open: %v", err)
	}
	sent, err := alice.Send(ctx, "hi", chat.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.State != domain.StateSent || sent.Status.Delivery != domain.DeliverySent {
		t.Fatalf("sent message state: %+v", sent)
	}
	thread := alice.Conversation().ThreadID()
	if thread == "" {
		t.Fatal("thread not adopted after first send")
	}
	saved, ok, err := friends.LoadFriend(bobID)
	if err != nil || !ok || saved.ThreadID != thread {
		t.Fatalf("friend binding not persisted: %+v ok=%v err=%v", saved, ok, err)
	}

	// Bob knows only the thread; his peer key is fetched from the directory.
	bob := w.session(t, bobID, aliceID, nil, nil)
	if err := bob.Open(ctx, domain.Friend{UserID: aliceID, ThreadID: thread}); err != nil {
		t.Fatalf("bob Open: %v", err)
	}
	if got := plaintexts(bob.Conversation().Messages()); len(got) != 1 || got[0] != "hi" {
		t.Fatalf("bob history: %v", got)
	}
	if f, _ := bob.Friend(); f.PublicKey != w.pubs[aliceID] {
		t.Fatal("bob did not record alice's public key")
	}

	if _, err := bob.Send(ctx, "hello back", chat.SendOptions{}); err != nil {
		t.Fatalf("bob Send: %v", err)
	}
	waitFor(t, "alice to receive reply", func() bool {
		return len(plaintexts(alice.Conversation().Messages())) == 2
	})
	got := plaintexts(alice.Conversation().Messages())
	if got[0] != "hi" || got[1] != "hello back" {
		t.Fatalf("alice order: %v", got)
	}

	n, err := bob.MarkIncomingRead(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkIncomingRead: n=%d err=%v", n, err)
	}
	waitFor(t, "alice to see read receipt", func() bool {
		m, ok := alice.Conversation().Message(sent.ClientMessageID)
		return ok && m.State == domain.StateRead
	})
}

func TestSession_SendWithMedia(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.session(t, aliceID, bobID, nil, nil)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	msg, err := alice.Send(ctx, "", chat.SendOptions{Media: []domain.MediaItem{
		{URL: "https://cdn.example/a.png", Type: domain.MediaImage, Format: "png"},
	}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(msg.Media) != 1 || msg.Media[0].Source != "https://cdn.example/a.png" {
		t.Fatalf("local media: %+v", msg.Media)
	}
	rec, err := w.backend.Message(ctx, bobID, alice.Conversation().ThreadID(), msg.ClientMessageID)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if len(rec.Metadata.Media) != 1 || rec.Metadata.Media[0].URL != "" {
		t.Fatalf("stored media leaks reference: %+v", rec.Metadata.Media)
	}

	if _, err := alice.Send(ctx, "  ", chat.SendOptions{}); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("empty send: got %v", err)
	}
}

func TestSession_BlockedSendIsRejected(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.session(t, aliceID, bobID, nil, nil)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := alice.Send(ctx, "before", chat.SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	thread := alice.Conversation().ThreadID()

	bob := w.session(t, bobID, aliceID, nil, nil)
	if err := bob.Open(ctx, domain.Friend{UserID: aliceID, PublicKey: w.pubs[aliceID], ThreadID: thread}); err != nil {
		t.Fatalf("bob Open: %v", err)
	}

	if err := alice.Block(ctx); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !alice.Conversation().BlockState().BlockedBySelf {
		t.Fatal("block not applied locally")
	}
	if _, err := alice.Send(ctx, "nope", chat.SendOptions{}); !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("send while blocked: got %v", err)
	}
	if alice.Conversation().Error() != "Messaging is blocked" {
		t.Fatalf("error: %q", alice.Conversation().Error())
	}

	waitFor(t, "bob to see block", func() bool { return bob.Conversation().BlockState().BlockedByFriend })
	if _, err := bob.Send(ctx, "still there?", chat.SendOptions{}); !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("bob send while blocked: got %v", err)
	}

	if err := alice.Unblock(ctx); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	waitFor(t, "bob to see unblock", func() bool { return !bob.Conversation().IsBlocked() })
	if _, err := bob.Send(ctx, "back", chat.SendOptions{}); err != nil {
		t.Fatalf("send after unblock: %v", err)
	}
}

// flaky fails SendMessage while fail is set.
type flaky struct {
	domain.PersistenceService
	fail atomic.Bool
}

func (f *flaky) SendMessage(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	if f.fail.Load() {
		return domain.SendResult{}, errors.New("network down")
	}
	return f.PersistenceService.SendMessage(ctx, req)
}

func TestSession_FailedSendIsIsolatedAndRetried(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	ps := &flaky{PersistenceService: w.backend.As(aliceID)}
	alice := w.session(t, aliceID, bobID, ps, nil)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ok, err := alice.Send(ctx, "first", chat.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	ps.fail.Store(true)
	failed, err := alice.Send(ctx, "second", chat.SendOptions{})
	if err == nil {
		t.Fatal("expected send failure")
	}
	if failed.State != domain.StateError || failed.Error == "" {
		t.Fatalf("failed message: %+v", failed)
	}
	if m, _ := alice.Conversation().Message(ok.ClientMessageID); m.State != domain.StateSent {
		t.Fatalf("other message disturbed: %+v", m)
	}

	ps.fail.Store(false)
	retried, err := alice.Retry(ctx, failed.ClientMessageID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.State != domain.StateSent || retried.Status.Retries != 1 || retried.Error != "" {
		t.Fatalf("retried message: %+v", retried)
	}
	if !retried.CreatedAt.Equal(failed.CreatedAt) {
		t.Fatal("retry changed createdAt")
	}
	if n := len(alice.Conversation().Messages()); n != 2 {
		t.Fatalf("messages: got %d, want 2", n)
	}

	if _, err := alice.Retry(ctx, "missing"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("retry unknown: got %v", err)
	}
}

func TestSession_RetryOnlyOwnFailedMessages(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.session(t, aliceID, bobID, nil, nil)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sent, err := alice.Send(ctx, "hi", chat.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	thread := alice.Conversation().ThreadID()

	bob := w.session(t, bobID, aliceID, nil, nil)
	if err := bob.Open(ctx, domain.Friend{UserID: aliceID, ThreadID: thread}); err != nil {
		t.Fatalf("bob Open: %v", err)
	}
	if _, err := bob.Retry(ctx, sent.ClientMessageID); !errors.Is(err, chat.ErrNotRetryable) {
		t.Fatalf("retry of a received message: got %v", err)
	}
	rec, err := w.backend.Message(ctx, aliceID, thread, sent.ClientMessageID)
	if err != nil || rec.FromID != aliceID {
		t.Fatalf("stored sender changed: %+v err=%v", rec, err)
	}

	if _, err := bob.MarkIncomingRead(ctx); err != nil {
		t.Fatalf("MarkIncomingRead: %v", err)
	}
	waitFor(t, "read receipt", func() bool {
		m, _ := alice.Conversation().Message(sent.ClientMessageID)
		return m.State == domain.StateRead
	})
	if _, err := alice.Retry(ctx, sent.ClientMessageID); !errors.Is(err, chat.ErrNotRetryable) {
		t.Fatalf("retry of a read message: got %v", err)
	}
	if m, _ := alice.Conversation().Message(sent.ClientMessageID); m.State != domain.StateRead {
		t.Fatalf("read message moved to %s", m.State)
	}
}

func TestSession_FailedSendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	outbox := store.NewOutboxFileStore(t.TempDir())
	ps := &flaky{PersistenceService: w.backend.As(aliceID)}
	bobFriend := domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}

	first := w.sessionWith(t, aliceID, ps, nil, chat.Options{Outbox: outbox})
	if err := first.Open(ctx, bobFriend); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := first.Send(ctx, "delivered", chat.SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	bobFriend.ThreadID = first.Conversation().ThreadID()
	ps.fail.Store(true)
	failed, err := first.Send(ctx, "stuck", chat.SendOptions{})
	if err == nil {
		t.Fatal("expected send failure")
	}
	first.Close()
	ps.fail.Store(false)

	second := w.sessionWith(t, aliceID, ps, nil, chat.Options{Outbox: outbox})
	if err := second.Open(ctx, bobFriend); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := second.Conversation().Message(failed.ClientMessageID)
	if !ok || got.State != domain.StateError || got.Plaintext == nil || *got.Plaintext != "stuck" {
		t.Fatalf("failed send not restored: %+v", got)
	}
	if n := len(second.Conversation().Messages()); n != 2 {
		t.Fatalf("messages: got %d, want 2", n)
	}

	retried, err := second.Retry(ctx, failed.ClientMessageID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.State != domain.StateSent || !retried.CreatedAt.Equal(failed.CreatedAt) {
		t.Fatalf("retried: %+v", retried)
	}
	if pending, _ := outbox.ListPending(bobID); len(pending) != 0 {
		t.Fatalf("outbox not cleared after retry: %+v", pending)
	}
}

func TestSession_RemoveClearsBothSides(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.session(t, aliceID, bobID, nil, nil)
	if err := alice.Open(ctx, domain.Friend{UserID: bobID, PublicKey: w.pubs[bobID]}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := alice.Send(ctx, "hi", chat.SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	bob := w.session(t, bobID, aliceID, nil, nil)
	if err := bob.Open(ctx, domain.Friend{UserID: aliceID, ThreadID: alice.Conversation().ThreadID()}); err != nil {
		t.Fatalf("bob Open: %v", err)
	}

	if err := alice.Remove(ctx); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(alice.Conversation().Messages()) != 0 || alice.Conversation().ThreadID() != "" {
		t.Fatal("alice conversation not cleared")
	}
	waitFor(t, "bob to see removal", func() bool {
		return bob.Conversation().Error() == conversation.FriendRemovedMessage
	})
	if len(bob.Conversation().Messages()) != 0 {
		t.Fatal("bob messages not cleared")
	}
}

func TestSession_RequiresFriend(t *testing.T) {
	w := newWorld(t)
	s := w.session(t, aliceID, bobID, nil, nil)
	if _, err := s.Send(context.Background(), "hi", chat.SendOptions{}); !errors.Is(err, chat.ErrNoFriend) {
		t.Fatalf("got %v", err)
	}
}
