package bus

import "kakioki/internal/domain"

func MessageTopic(id domain.ThreadID) string { return "chat:thread:" + string(id) }
func StatusTopic(id domain.ThreadID) string  { return "chat:status:" + string(id) }
func ControlTopic(id domain.ThreadID) string { return "chat:control:" + string(id) }

// Topics returns the message, status and control topics for a thread.
func Topics(id domain.ThreadID) []string {
	return []string{MessageTopic(id), StatusTopic(id), ControlTopic(id)}
}
