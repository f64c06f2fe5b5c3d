// Package history loads pages of a conversation's stored messages into the
// conversation state.
//
// Every load takes a sequence number. A load that finishes after a newer
// load started, or after the conversation moved to another friend or
// thread, is discarded without touching state.
package history
