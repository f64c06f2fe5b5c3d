package crypto

import (
	"golang.org/x/crypto/blake2b"

	"kakioki/internal/domain"
)

// SessionKeys is a directional key pair: Rx decrypts inbound, Tx encrypts outbound.
type SessionKeys struct {
	Rx [32]byte
	Tx [32]byte
}

// ClientSessionKeys matches libsodium crypto_kx_client_session_keys.
func ClientSessionKeys(
	clientPub domain.X25519Public,
	clientPriv domain.X25519Private,
	serverPub domain.X25519Public,
) (SessionKeys, error) {
	h, err := kxHash(clientPriv, serverPub, clientPub, serverPub)
	if err != nil {
		return SessionKeys{}, err
	}
	var keys SessionKeys
	copy(keys.Rx[:], h[:32])
	copy(keys.Tx[:], h[32:])
	Wipe(h[:])
	return keys, nil
}

// ServerSessionKeys matches libsodium crypto_kx_server_session_keys.
func ServerSessionKeys(
	serverPub domain.X25519Public,
	serverPriv domain.X25519Private,
	clientPub domain.X25519Public,
) (SessionKeys, error) {
	h, err := kxHash(serverPriv, clientPub, clientPub, serverPub)
	if err != nil {
		return SessionKeys{}, err
	}
	var keys SessionKeys
	copy(keys.Tx[:], h[:32])
	copy(keys.Rx[:], h[32:])
	Wipe(h[:])
	return keys, nil
}

// kxHash computes BLAKE2b-512(q || client_pk || server_pk).
func kxHash(
	priv domain.X25519Private,
	peer domain.X25519Public,
	clientPub, serverPub domain.X25519Public,
) ([64]byte, error) {
	q, err := DH(priv, peer)
	if err != nil {
		return [64]byte{}, err
	}
	defer Wipe(q[:])

	h, _ := blake2b.New512(nil)
	h.Write(q[:])
	h.Write(clientPub[:])
	h.Write(serverPub[:])

	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// GenericHash256 is unkeyed BLAKE2b with a 32-byte digest (crypto_generichash).
func GenericHash256(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
