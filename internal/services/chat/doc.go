// Package chat ties the key deriver, cipher, conversation state, history
// loader and realtime router into one session with a single friend.
//
// Sending is optimistic: the encrypted message is inserted in the sending
// state before the persistence call and reconciled with the stored record
// when it returns. A failed send marks only that message as failed; it can
// be retried with the same client message id while its plaintext is held.
package chat
