// Package main runs the in-memory HTTP relay used by kakioki during
// development and tests. It stores public keys, threads and encrypted
// messages, and optionally publishes realtime events to Redis.
//
// HTTP API (all /api routes require the X-User-ID header)
//
//	POST /api/profile
//	    Publish the caller's public key.
//
//	GET /api/friend/profile?friendId=N
//	    Return a user's public key.
//
//	POST /api/thread
//	    Create or return the thread between the caller and peerId.
//
//	GET /api/chat/{threadId}?limit=N&after=T
//	    Return a page of messages in ascending createdAt order together
//	    with the block summary. Without after, the newest page.
//
//	GET /api/chat/message?threadId=T&clientMessageId=C
//	    Return one stored message, 404 when absent.
//
//	POST /api/chat/send
//	    Store a message, upserting on clientMessageId. Sends into a
//	    blocked thread are refused with 403.
//
//	POST /api/chat/status
//	    Merge a status into at most 50 messages, stamping deliveredAt and
//	    readAt.
//
//	POST /api/chat/block, /api/chat/unblock, /api/chat/remove
//	    Change the block relationship or delete the thread.
//
//	GET /metrics
//	    Prometheus metrics.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - With --redis, every change is published on the thread's message,
//     status or control topic; message events above --payload-ceiling are
//     trimmed and flagged hasFullMetadata=false.
//   - An access log records method, path, remote, status, bytes and
//     duration for each request.
//
// The relay never sees plaintext or private keys; it only stores ciphertext
// and public keys.
package main
