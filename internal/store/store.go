// Package store provides the message store adapter: one contract over
// the ephemeral in-memory backend, the persisted chatd backend, and
// chatd's own SQLite substrate.
package store

import (
	"context"

	"github.com/teamdesk/messaging/internal/msg"
)

// ThreadMessages is one counterpart's raw thread, as returned by the
// bulk ListConversations read.
type ThreadMessages struct {
	Counterpart string        `json:"counterpart"`
	Messages    []msg.Message `json:"messages"`
}

// MessageStore is the uniform surface over a thread of messages. The
// persisted implementation is the only asynchronous boundary in the
// core; the in-memory one never suspends.
//
// Callers own the degradation policy: a failed FetchThread renders as
// an empty (or last-known) thread, a failed write is retried by the
// next poll tick. Nothing here is fatal.
type MessageStore interface {
	// FetchThread returns the full ordered thread between a and b,
	// oldest first.
	FetchThread(ctx context.Context, a, b string) ([]msg.Message, error)

	// Send appends a message and returns it as stored. On failure no
	// local state has been mutated; the caller keeps the draft.
	Send(ctx context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error)

	// MarkRead flips the read flag on every unread message addressed
	// to user from counterpart, in one logical operation. Idempotent.
	MarkRead(ctx context.Context, user, counterpart string) error

	// DeleteMessage removes a single message. Only the sender may
	// delete; other callers get ErrUnauthorized. Deleting a message
	// that no longer exists is a successful no-op.
	DeleteMessage(ctx context.Context, caller, id string) error

	// DeleteThread removes every message between a and b, atomically
	// from the caller's perspective. Deleting an empty thread is a
	// successful no-op.
	DeleteThread(ctx context.Context, a, b string) error

	// ListConversations returns, for every counterpart user has ever
	// exchanged messages with, the raw thread. One bulk read so the
	// aggregator does not re-fetch each thread individually.
	ListConversations(ctx context.Context, user string) ([]ThreadMessages, error)
}
