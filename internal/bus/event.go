package bus

import "time"

// Event kinds published by the messaging core. Subscribers filter by
// namespace prefix, e.g. "message." receives every message event.
const (
	KindMessageSent    = "message.sent"
	KindMessageFailed  = "message.send_failed"
	KindMessageDeleted = "message.deleted"
	KindThreadDeleted  = "thread.deleted"
	KindConversations  = "conversations.updated"
	KindAlert          = "alert.message"
	KindPresence       = "presence.changed"
)

// Event is a signal published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Alert is the payload of an alert.message event: one new inbound
// message that should produce a sound or visual notification.
type Alert struct {
	From      string
	To        string
	MessageID string
	Preview   string
}
