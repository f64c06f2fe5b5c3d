package relay_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"kakioki/internal/bus"
	"kakioki/internal/domain"
	"kakioki/internal/relay"
)

const (
	alice domain.UserID = 1
	bob   domain.UserID = 2
)

// fixedClock returns a clock advancing one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func send(t *testing.T, p domain.PersistenceService, thread domain.ThreadID, id string) domain.SendResult {
	t.Helper()
	res, err := p.SendMessage(context.Background(), domain.SendRequest{
		ThreadID:        thread,
		ToUserID:        bob,
		ClientMessageID: id,
		Ciphertext:      "ct-" + id,
		Nonce:           "n-" + id,
		Status:          domain.StatusMetadata{Retries: 1},
	})
	if err != nil {
		t.Fatalf("SendMessage(%s): %v", id, err)
	}
	return res
}

func TestBackend_SendDefaultsStatusAndUpserts(t *testing.T) {
	b := relay.NewBackend(nil, relay.WithClock(fixedClock()))
	a := b.As(alice)

	first := send(t, a, "", "m1")
	if first.ThreadID == "" || first.Message.ID == nil {
		t.Fatalf("send result: %+v", first)
	}
	st := first.Message.StatusMetadata
	if st.Delivery != domain.DeliverySent || st.SentAt == nil || st.Retries != 1 {
		t.Fatalf("status not defaulted then overlaid: %+v", st)
	}

	again := send(t, a, first.ThreadID, "m1")
	if *again.Message.ID != *first.Message.ID || !again.Message.CreatedAt.Equal(first.Message.CreatedAt) {
		t.Fatal("resend did not upsert the existing record")
	}

	page, err := b.As(bob).FetchHistory(context.Background(), first.ThreadID, domain.HistoryQuery{})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(page.Messages))
	}
}

func TestBackend_SendRejectsUpsertByOtherUser(t *testing.T) {
	ctx := context.Background()
	b := relay.NewBackend(nil, relay.WithClock(fixedClock()))
	first := send(t, b.As(alice), "", "m1")

	_, err := b.As(bob).SendMessage(ctx, domain.SendRequest{
		ThreadID:        first.ThreadID,
		ToUserID:        alice,
		ClientMessageID: "m1",
		Ciphertext:      "forged",
		Nonce:           "n",
	})
	if !errors.Is(err, relay.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	rec, err := b.Message(ctx, alice, first.ThreadID, "m1")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.FromID != alice || rec.Ciphertext != "ct-m1" {
		t.Fatalf("stored record overwritten: %+v", rec)
	}
}

func TestBackend_HistoryPaging(t *testing.T) {
	ctx := context.Background()
	b := relay.NewBackend(nil, relay.WithClock(fixedClock()))
	a := b.As(alice)
	thread := send(t, a, "", "m0").ThreadID
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		send(t, a, thread, id)
	}

	latest, err := a.FetchHistory(ctx, thread, domain.HistoryQuery{Limit: 2})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(latest.Messages) != 2 || latest.Messages[0].ClientMessageID != "m3" || latest.Messages[1].ClientMessageID != "m4" {
		t.Fatalf("latest page: %+v", latest.Messages)
	}

	after := latest.Messages[0].CreatedAt.Add(-2 * time.Second)
	older, _ := a.FetchHistory(ctx, thread, domain.HistoryQuery{Limit: 2, After: &after})
	if len(older.Messages) != 2 || older.Messages[0].ClientMessageID != "m2" {
		t.Fatalf("after page: %+v", older.Messages)
	}

	if _, err := b.As(3).FetchHistory(ctx, thread, domain.HistoryQuery{}); !errors.Is(err, relay.ErrForbidden) {
		t.Fatalf("outsider: got %v", err)
	}
	if got := relay.ClampLimit(0); got != 50 {
		t.Fatalf("ClampLimit(0) = %d", got)
	}
	if got := relay.ClampLimit(1000); got != 200 {
		t.Fatalf("ClampLimit(1000) = %d", got)
	}
}

func TestBackend_BlockStopsSendingAndPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	mem := bus.NewMemoryBus()
	b := relay.NewBackend(nil, relay.WithPublisher(bus.NewPublisher(mem, nil, nil, 0)))
	thread, err := b.OpenThread(ctx, alice, bob)
	if err != nil {
		t.Fatalf("OpenThread: %v", err)
	}
	sub, _ := mem.Subscribe(ctx, bus.ControlTopic(thread.ThreadID))
	defer sub.Close()

	res, err := b.As(bob).Block(ctx, domain.ControlRequest{TargetUserID: alice})
	if err != nil || res.ThreadID != thread.ThreadID {
		t.Fatalf("Block: %+v %v", res, err)
	}
	select {
	case msg := <-sub.Messages():
		evt, err := bus.DecodeEvent(msg.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		c := evt.(domain.ControlEvent)
		if c.Kind() != domain.EventBlock || c.BlockerID != bob || c.BlockedID != alice {
			t.Fatalf("control event: %+v", c)
		}
	case <-ctx.Done():
		t.Fatal("no control event")
	}

	if _, err := b.As(alice).SendMessage(ctx, domain.SendRequest{ToUserID: bob, ClientMessageID: "x", Ciphertext: "c", Nonce: "n"}); !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("send while blocked: got %v", err)
	}

	page, _ := b.As(alice).FetchHistory(ctx, thread.ThreadID, domain.HistoryQuery{})
	if blk := page.Thread.Block; blk == nil || !blk.BlockedByOther || blk.BlockedBySelf {
		t.Fatalf("block summary: %+v", page.Thread.Block)
	}
}

func TestHTTP_RoundTripsThroughServer(t *testing.T) {
	ctx := context.Background()
	b := relay.NewBackend(nil, relay.WithClock(fixedClock()))
	srv := httptest.NewServer(relay.NewServer(b, nil, nil))
	defer srv.Close()

	a := relay.NewHTTP(srv.URL, alice)
	bb := relay.NewHTTP(srv.URL, bob)

	if err := bb.PublishProfile(ctx, "bob", "bob-key"); err != nil {
		t.Fatalf("PublishProfile: %v", err)
	}
	p, err := a.Profile(ctx, bob)
	if err != nil || p.PublicKey != "bob-key" || p.UserID != bob {
		t.Fatalf("Profile: %+v %v", p, err)
	}
	if _, err := a.Profile(ctx, 42); !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("missing profile: got %v", err)
	}

	res := send(t, a, "", "m1")
	rec, err := bb.FetchMessage(ctx, res.ThreadID, "m1")
	if err != nil || rec == nil || rec.Ciphertext != "ct-m1" {
		t.Fatalf("FetchMessage: %+v %v", rec, err)
	}
	missing, err := bb.FetchMessage(ctx, res.ThreadID, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing message: %+v %v", missing, err)
	}

	updated, err := bb.UpdateStatus(ctx, domain.StatusRequest{
		ThreadID:   res.ThreadID,
		MessageIDs: []string{"m1"},
		Status:     domain.StatusMetadata{Delivery: domain.DeliveryRead},
	})
	if err != nil || len(updated) != 1 || updated[0].StatusMetadata.ReadAt == nil {
		t.Fatalf("UpdateStatus: %+v %v", updated, err)
	}

	page, err := a.FetchHistory(ctx, res.ThreadID, domain.HistoryQuery{Limit: 10})
	if err != nil || len(page.Messages) != 1 || page.Thread.ThreadID != res.ThreadID {
		t.Fatalf("FetchHistory: %+v %v", page, err)
	}
	if page.Messages[0].StatusMetadata.Delivery != domain.DeliveryRead {
		t.Fatal("status update not persisted")
	}

	if _, err := bb.Block(ctx, domain.ControlRequest{ThreadID: res.ThreadID}); err != nil {
		t.Fatalf("Block: %v", err)
	}
	_, err = a.SendMessage(ctx, domain.SendRequest{ThreadID: res.ThreadID, ToUserID: bob, ClientMessageID: "m2", Ciphertext: "c", Nonce: "n"})
	if !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("blocked send over http: got %v", err)
	}

	removed, err := a.Remove(ctx, domain.ControlRequest{TargetUserID: bob})
	if err != nil || removed.ThreadID != res.ThreadID {
		t.Fatalf("Remove: %+v %v", removed, err)
	}
	if _, err := a.FetchHistory(ctx, res.ThreadID, domain.HistoryQuery{}); !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("history after remove: got %v", err)
	}

	anon := relay.NewHTTP(srv.URL, 0)
	var se *relay.StatusError
	if _, err := anon.OpenThread(ctx, bob); !errors.As(err, &se) || se.Code != 401 {
		t.Fatalf("unauthenticated: got %v", err)
	}
}
