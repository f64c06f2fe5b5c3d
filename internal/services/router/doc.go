// Package router subscribes to a conversation's realtime topics and applies
// incoming events to the conversation state.
//
// New message events are decrypted off the receive loop. Each one cancels
// the message event still in flight before it, and results of a cancelled
// event are discarded.
package router
