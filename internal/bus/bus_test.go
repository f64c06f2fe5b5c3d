package bus_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"kakioki/internal/bus"
	"kakioki/internal/domain"
)

func TestTopics(t *testing.T) {
	got := bus.Topics("abc")
	want := []string{"chat:thread:abc", "chat:status:abc", "chat:control:abc"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topic %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeEvent_Variants(t *testing.T) {
	cases := []struct {
		payload string
		check   func(domain.Event) bool
	}{
		{`{"type":"chat_message","threadId":"t","clientMessageId":"c","fromId":1,"toId":2,"ciphertext":"x","nonce":"y","metadata":{},"status":{},"createdAt":"2024-01-01T00:00:00Z","hasFullMetadata":false}`,
			func(e domain.Event) bool { m, ok := e.(domain.MessageEvent); return ok && !m.Full() && m.FromID == 1 }},
		{`{"type":"chat_status","threadId":"t","clientMessageId":"c","actorId":2,"status":{"delivery":"read"},"createdAt":"2024-01-01T00:00:00Z"}`,
			func(e domain.Event) bool {
				s, ok := e.(domain.StatusEvent)
				return ok && s.Status.Delivery == domain.DeliveryRead
			}},
		{`{"type":"chat_block","threadId":"t","blockerId":1,"blockedId":2,"createdAt":"2024-01-01T00:00:00Z"}`,
			func(e domain.Event) bool { c, ok := e.(domain.ControlEvent); return ok && c.Kind() == domain.EventBlock }},
		{`{"type":"chat_removed","threadId":"t","initiatorId":2,"targetId":1,"createdAt":"2024-01-01T00:00:00Z"}`,
			func(e domain.Event) bool { c, ok := e.(domain.ControlEvent); return ok && c.InitiatorID == 2 }},
	}
	for _, tc := range cases {
		evt, err := bus.DecodeEvent([]byte(tc.payload))
		if err != nil {
			t.Fatalf("DecodeEvent(%s): %v", tc.payload, err)
		}
		if evt.Thread() != "t" || !tc.check(evt) {
			t.Fatalf("unexpected decode of %s: %#v", tc.payload, evt)
		}
	}

	if _, err := bus.DecodeEvent([]byte(`{"type":"friend_request"}`)); !errors.Is(err, bus.ErrUnknownEvent) {
		t.Fatalf("unknown type: got %v", err)
	}
	if _, err := bus.DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func bigEvent(mediaBytes, textBytes int) domain.MessageEvent {
	return domain.MessageEvent{
		ThreadID:        "t",
		ClientMessageID: "c",
		FromID:          1,
		ToID:            2,
		Ciphertext:      "ct",
		Nonce:           "n",
		Metadata: domain.MessageMetadata{
			Text:  strings.Repeat("x", textBytes),
			Media: []domain.EncryptedMediaDescriptor{{Type: domain.MediaImage, Ciphertext: strings.Repeat("m", mediaBytes)}},
		},
		CreatedAt: time.Unix(0, 0).UTC(),
	}
}

func decodeMessage(t *testing.T, payload []byte) domain.MessageEvent {
	t.Helper()
	var e domain.MessageEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return e
}

func TestTrimMessageEvent(t *testing.T) {
	const ceiling = 2000

	payload, trimmed, err := bus.TrimMessageEvent(bigEvent(10, 10), ceiling)
	if err != nil || trimmed {
		t.Fatalf("small event: trimmed=%v err=%v", trimmed, err)
	}
	e := decodeMessage(t, payload)
	if e.HasFullMetadata == nil || !*e.HasFullMetadata || len(e.Metadata.Media) != 1 || e.Type != domain.EventMessage {
		t.Fatalf("small event altered: %+v", e)
	}

	payload, trimmed, _ = bus.TrimMessageEvent(bigEvent(5000, 10), ceiling)
	e = decodeMessage(t, payload)
	if !trimmed || e.Full() || len(e.Metadata.Media) != 0 || e.Metadata.Text == "" {
		t.Fatalf("media trim: %+v", e.Metadata)
	}

	payload, trimmed, _ = bus.TrimMessageEvent(bigEvent(5000, 5000), ceiling)
	e = decodeMessage(t, payload)
	if !trimmed || e.Full() || e.Metadata.Text != "" || len(payload) > ceiling {
		t.Fatalf("minimal trim: %d bytes", len(payload))
	}
	if e.Ciphertext != "ct" || e.ClientMessageID != "c" {
		t.Fatal("trimming touched the envelope fields")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b := bus.NewMemoryBus()

	sub, err := b.Subscribe(ctx, bus.Topics("t")...)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	pub := bus.NewPublisher(b, nil, nil, 0)
	if err := pub.PublishStatus(ctx, domain.StatusEvent{ThreadID: "t", ClientMessageID: "c"}); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if err := pub.PublishStatus(ctx, domain.StatusEvent{ThreadID: "other", ClientMessageID: "c"}); err != nil {
		t.Fatalf("PublishStatus other: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Topic != bus.StatusTopic("t") {
			t.Fatalf("topic: %s", msg.Topic)
		}
		evt, err := bus.DecodeEvent(msg.Payload)
		if err != nil || evt.Kind() != domain.EventStatus {
			t.Fatalf("decode: %v %v", evt, err)
		}
	case <-ctx.Done():
		t.Fatal("no message delivered")
	}

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected delivery on %s", msg.Topic)
	default:
	}

	_ = sub.Close()
	if err := pub.PublishStatus(ctx, domain.StatusEvent{ThreadID: "t"}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
}
