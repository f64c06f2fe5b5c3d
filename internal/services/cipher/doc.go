// Package cipher encrypts message text and attachment references under a
// pair's shared key and turns persisted records back into chat messages.
//
// Each call uses a fresh random nonce. Ciphertexts and nonces travel as
// URL-safe unpadded base64.
//
// Only attachment references are confidential. The referenced bytes stay
// wherever they were uploaded, and the descriptor's type, size, dimensions,
// name and thumbnail travel in the clear so the peer can lay out a preview
// before decrypting.
package cipher
