// Package bus carries realtime conversation events between the relay and
// clients.
//
// Each thread has three topics: one for new messages, one for delivery
// status and one for block and removal control events. Delivery is
// at-least-once and unordered across topics. Publishers keep message events
// under a size ceiling by dropping attachment descriptors, and then all
// metadata, marking the event as partial so subscribers refetch the stored
// record.
package bus
