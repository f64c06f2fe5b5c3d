package cipher_test

import (
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
	"kakioki/internal/metrics"
	"kakioki/internal/services/cipher"
)

func randomKey(t *testing.T) domain.SharedKey {
	t.Helper()
	var k domain.SharedKey
	if _, err := rand.Read(k[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return k
}

func TestText_RoundTrip(t *testing.T) {
	key := randomKey(t)
	for _, text := range []string{"", "hi", "こんにちは 👋", string(make([]byte, 4096))} {
		ct, nonce, err := cipher.EncryptText(key, text)
		if err != nil {
			t.Fatalf("EncryptText(%q): %v", text, err)
		}
		got, err := cipher.DecryptText(key, ct, nonce)
		if err != nil {
			t.Fatalf("DecryptText: %v", err)
		}
		if got != text {
			t.Fatalf("round trip: got %q, want %q", got, text)
		}
	}
}

func TestText_FreshNoncePerCall(t *testing.T) {
	key := randomKey(t)
	ct1, n1, _ := cipher.EncryptText(key, "same")
	ct2, n2, _ := cipher.EncryptText(key, "same")
	if n1 == n2 || ct1 == ct2 {
		t.Fatal("nonce or ciphertext reused")
	}
}

func TestText_TamperAndWrongKey(t *testing.T) {
	key := randomKey(t)
	ct, nonce, err := cipher.EncryptText(key, "secret")
	if err != nil {
		t.Fatalf("EncryptText: %v", err)
	}

	raw, _ := crypto.DecodeB64URL(ct)
	raw[len(raw)-1] ^= 0x01
	if _, err := cipher.DecryptText(key, crypto.B64URL(raw), nonce); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("bit flip: got %v", err)
	}
	if _, err := cipher.DecryptText(randomKey(t), ct, nonce); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("wrong key: got %v", err)
	}
	if _, err := cipher.DecryptText(key, ct, crypto.B64URL([]byte("short"))); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("short nonce: got %v", err)
	}
	if _, err := cipher.DecryptText(key, "***", nonce); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("bad base64: got %v", err)
	}
}

func TestMediaReference_RoundTrip(t *testing.T) {
	key := randomKey(t)
	item := domain.MediaItem{URL: "https://cdn.example/a.png", Type: domain.MediaImage, Format: "png", Size: 42, Width: 4, Height: 3}

	desc, local, err := cipher.EncryptMediaReference(key, item)
	if err != nil {
		t.Fatalf("EncryptMediaReference: %v", err)
	}
	if desc.URL != "" {
		t.Fatalf("wire url leaked: %q", desc.URL)
	}
	if desc.Digest != crypto.Digest(item.URL) || local.Digest != desc.Digest {
		t.Fatal("digest mismatch")
	}

	got, err := cipher.DecryptMediaReference(key, desc)
	if err != nil {
		t.Fatalf("DecryptMediaReference: %v", err)
	}
	if got != local {
		t.Fatalf("decrypted %+v, want %+v", got, local)
	}
}

func TestService_BatchesSkipUnusableItems(t *testing.T) {
	key := randomKey(t)
	m := metrics.New(nil)
	svc := cipher.New(nil, m)

	descs, local := svc.EncryptMedia(key, []domain.MediaItem{
		{URL: "https://a", Type: domain.MediaImage},
		{Type: domain.MediaFile},
		{URL: "https://b", Type: domain.MediaFile},
	})
	if len(descs) != 2 || len(local) != 2 {
		t.Fatalf("encrypted %d/%d items, want 2", len(descs), len(local))
	}

	descs = append(descs, domain.EncryptedMediaDescriptor{Type: domain.MediaImage})
	other, _, _ := cipher.EncryptMediaReference(randomKey(t), domain.MediaItem{URL: "https://c"})
	descs = append(descs, other)

	got := svc.DecryptMedia(key, descs)
	if len(got) != 2 || got[0].Source != "https://a" || got[1].Source != "https://b" {
		t.Fatalf("decrypted %+v", got)
	}
	if n := testutil.ToFloat64(m.DecryptFailures.WithLabelValues("media")); n != 1 {
		t.Fatalf("media failures: got %v, want 1", n)
	}

	uploaded := cipher.MediaToUploaded(got)
	if len(uploaded) != 1 || uploaded[0].URL != "https://a" {
		t.Fatalf("MediaToUploaded: %+v", uploaded)
	}
}

func TestService_DecryptRecordNeverFails(t *testing.T) {
	key := randomKey(t)
	svc := cipher.New(nil, nil)
	ct, nonce, _ := cipher.EncryptText(key, "hello")
	rec := domain.MessageRecord{
		ClientMessageID: "c1",
		FromID:          7,
		Ciphertext:      ct,
		Nonce:           nonce,
		StatusMetadata:  domain.StatusMetadata{Delivery: domain.DeliveryDelivered},
		CreatedAt:       time.Unix(100, 0),
	}

	msg := svc.DecryptRecord(key, rec)
	if msg.Plaintext == nil || *msg.Plaintext != "hello" {
		t.Fatalf("plaintext: %v", msg.Plaintext)
	}
	if msg.State != domain.StateDelivered || msg.SenderID != 7 {
		t.Fatalf("state=%s sender=%d", msg.State, msg.SenderID)
	}

	bad := svc.DecryptRecord(randomKey(t), rec)
	if bad.Plaintext != nil {
		t.Fatal("plaintext set for undecryptable record")
	}
	if bad.ClientMessageID != "c1" || bad.Ciphertext != ct {
		t.Fatal("record fields not carried over")
	}
}
