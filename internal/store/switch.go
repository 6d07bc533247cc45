package store

import (
	"context"

	"github.com/teamdesk/messaging/internal/config"
	"github.com/teamdesk/messaging/internal/msg"
)

// Switched routes every operation to the ephemeral or persisted
// backend according to the current storage mode. The mode is looked
// up per call, never cached, so flipping it mid-session is safe: the
// next operation simply lands on the other backend.
type Switched struct {
	mode      func() config.Mode
	ephemeral MessageStore
	persisted MessageStore
}

// NewSwitched creates a mode-switched store.
func NewSwitched(mode func() config.Mode, ephemeral, persisted MessageStore) *Switched {
	return &Switched{mode: mode, ephemeral: ephemeral, persisted: persisted}
}

func (s *Switched) backend() MessageStore {
	if s.mode() == config.ModePersisted {
		return s.persisted
	}
	return s.ephemeral
}

// FetchThread implements MessageStore.
func (s *Switched) FetchThread(ctx context.Context, a, b string) ([]msg.Message, error) {
	return s.backend().FetchThread(ctx, a, b)
}

// Send implements MessageStore.
func (s *Switched) Send(ctx context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error) {
	return s.backend().Send(ctx, from, to, text, att)
}

// MarkRead implements MessageStore.
func (s *Switched) MarkRead(ctx context.Context, user, counterpart string) error {
	return s.backend().MarkRead(ctx, user, counterpart)
}

// DeleteMessage implements MessageStore.
func (s *Switched) DeleteMessage(ctx context.Context, caller, id string) error {
	return s.backend().DeleteMessage(ctx, caller, id)
}

// DeleteThread implements MessageStore.
func (s *Switched) DeleteThread(ctx context.Context, a, b string) error {
	return s.backend().DeleteThread(ctx, a, b)
}

// ListConversations implements MessageStore.
func (s *Switched) ListConversations(ctx context.Context, user string) ([]ThreadMessages, error) {
	return s.backend().ListConversations(ctx, user)
}
