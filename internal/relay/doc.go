// Package relay implements the persistence and directory services a
// kakioki client talks to.
//
// Backend is an in-memory store of threads, encrypted messages, blocks and
// public profiles that publishes realtime events for every change. Server
// exposes a Backend over JSON HTTP, and HTTP is the matching client, which
// satisfies domain.PersistenceService and domain.Directory for one user.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as errors carrying the HTTP
// method, path and status text.
package relay
