package msg

// Attachment is a file attached to a message.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Message is a direct message between two users.
type Message struct {
	ID         string      `json:"id"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  int64       `json:"timestamp"` // unix milliseconds
	Read       bool        `json:"read"`
}

// Inbound reports whether m was sent to user by someone else.
func (m *Message) Inbound(user string) bool {
	return m.To == user && m.From != user
}

// Conversation is the derived per-counterpart summary shown in the
// conversation list. It is recomputed on every aggregation pass and
// never stored, so it cannot drift from the message store except
// between polls.
type Conversation struct {
	With          string `json:"with"`
	Display       string `json:"display"`
	Avatar        string `json:"avatar,omitempty"`
	LastMessage   string `json:"lastMessage"`
	LastTimestamp int64  `json:"lastTimestamp"`
	Unread        int    `json:"unread"`
	Online        bool   `json:"online"`
	Status        string `json:"status"`
}

// PresenceRecord is a heartbeat observation for one user. Written by
// the presence reporter; read-only to everything else.
type PresenceRecord struct {
	UID      string `json:"uid"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"` // unix milliseconds
}
