package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
)

var cheap = crypto.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

// makeIdentity returns a fresh X25519 key pair.
func makeIdentity(t *testing.T) (priv domain.X25519Private, pub domain.X25519Public) {
	t.Helper()
	p, P, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return p, P
}

func TestKX_ClientServerAgree(t *testing.T) {
	cPriv, cPub := makeIdentity(t)
	sPriv, sPub := makeIdentity(t)

	client, err := crypto.ClientSessionKeys(cPub, cPriv, sPub)
	if err != nil {
		t.Fatalf("ClientSessionKeys: %v", err)
	}
	server, err := crypto.ServerSessionKeys(sPub, sPriv, cPub)
	if err != nil {
		t.Fatalf("ServerSessionKeys: %v", err)
	}
	if client.Tx != server.Rx || client.Rx != server.Tx {
		t.Fatal("client and server session keys do not mirror each other")
	}
	if client.Tx == client.Rx {
		t.Fatal("tx and rx must differ")
	}
}

func TestPublicFromPrivate_MatchesGenerated(t *testing.T) {
	priv, pub := makeIdentity(t)
	got, err := crypto.PublicFromPrivate(priv)
	if err != nil {
		t.Fatalf("PublicFromPrivate: %v", err)
	}
	if got != pub {
		t.Fatal("derived public key differs from generated one")
	}
}

func TestSealOpen_RoundTripAndTamper(t *testing.T) {
	var key [crypto.KeyBytes]byte
	copy(key[:], bytes.Repeat([]byte{7}, crypto.KeyBytes))
	nonce, err := crypto.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}

	ct := crypto.Seal(&key, &nonce, []byte("hello"))
	pt, err := crypto.Open(&key, &nonce, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("got %q, want %q", pt, "hello")
	}

	ct[len(ct)-1] ^= 0x01
	if _, err := crypto.Open(&key, &nonce, ct); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("tampered open: got %v, want ErrDecryptionFailed", err)
	}
}

func TestPrivateKeyEnvelope_RoundTrip(t *testing.T) {
	priv, _ := makeIdentity(t)

	encoded, err := crypto.SealPrivateKey(priv, "correct horse", cheap)
	if err != nil {
		t.Fatalf("SealPrivateKey: %v", err)
	}
	if !strings.HasPrefix(encoded, "v1:") || strings.Count(encoded, ".") != 2 {
		t.Fatalf("unexpected envelope shape %q", encoded)
	}
	if strings.ContainsAny(encoded, "+/=") {
		t.Fatalf("envelope must be URL-safe unpadded base64: %q", encoded)
	}

	got, err := crypto.OpenPrivateKey(encoded, "correct horse", cheap)
	if err != nil {
		t.Fatalf("OpenPrivateKey: %v", err)
	}
	if got != priv {
		t.Fatal("private key mismatch after round trip")
	}
}

func TestPrivateKeyEnvelope_WrongPassword(t *testing.T) {
	priv, _ := makeIdentity(t)
	encoded, err := crypto.SealPrivateKey(priv, "right", cheap)
	if err != nil {
		t.Fatalf("SealPrivateKey: %v", err)
	}
	if _, err := crypto.OpenPrivateKey(encoded, "wrong", cheap); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	priv, _ := makeIdentity(t)
	good, err := crypto.SealPrivateKey(priv, "pw", cheap)
	if err != nil {
		t.Fatalf("SealPrivateKey: %v", err)
	}
	_, payload, _ := strings.Cut(good, ":")
	parts := strings.Split(payload, ".")

	cases := map[string]string{
		"no version":      payload,
		"empty payload":   "v1:",
		"two parts":       "v1:" + parts[0] + "." + parts[1],
		"four parts":      good + ".AA",
		"bad base64":      "v1:" + parts[0] + ".!!!." + parts[2],
		"short salt":      "v1:AAAA." + parts[1] + "." + parts[2],
		"unknown version": "v2:" + payload,
	}
	for name, in := range cases {
		if _, err := crypto.OpenPrivateKey(in, "pw", cheap); !errors.Is(err, domain.ErrInvalidEnvelope) {
			t.Errorf("%s: got %v, want ErrInvalidEnvelope", name, err)
		}
	}
}

func TestGenericHash256_Deterministic(t *testing.T) {
	a := crypto.GenericHash256([]byte("ab"), []byte("c"))
	b := crypto.GenericHash256([]byte("abc"))
	if a != b {
		t.Fatal("hash must be over the concatenation of parts")
	}
}

func TestFingerprint_Grouped(t *testing.T) {
	_, pub := makeIdentity(t)
	fp := crypto.Fingerprint(pub).String()
	if len(fp) != 24 || strings.Count(fp, " ") != 4 {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}

func TestDecodePublicKey(t *testing.T) {
	_, pub := makeIdentity(t)
	got, err := crypto.DecodePublicKey(crypto.B64URL(pub[:]))
	if err != nil || got != pub {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	for _, bad := range []string{"", "!!", crypto.B64URL(pub[:31])} {
		if _, err := crypto.DecodePublicKey(bad); !errors.Is(err, crypto.ErrBadPublicKey) {
			t.Fatalf("DecodePublicKey(%q): got %v", bad, err)
		}
	}
}
