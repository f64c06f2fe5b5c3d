// Package conversation holds the client-side view of one conversation: the
// ordered message list, block flags, thread binding and error slot.
//
// Messages are keyed by client message id and kept sorted by creation time.
// Every mutation is idempotent, so the same record arriving from the send
// response, a realtime event and a history page converges on one entry.
// Delivery status only moves forward: sending, sent, delivered, read. A
// failure is accepted from sending or sent, and a failed message may be
// retried.
package conversation
