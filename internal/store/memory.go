package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamdesk/messaging/internal/msg"
)

// Memory is the ephemeral backend: messages live in process memory
// and vanish with it. Used when no shared chatd is configured. It
// never suspends and Send never fails.
type Memory struct {
	mu      sync.RWMutex
	threads map[msg.ThreadKey][]msg.Message

	// now is the timestamp source, overridable in tests.
	now func() int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		threads: make(map[msg.ThreadKey][]msg.Message),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// FetchThread implements MessageStore.
func (s *Memory) FetchThread(_ context.Context, a, b string) ([]msg.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread := s.threads[msg.Key(a, b)]
	out := make([]msg.Message, len(thread))
	copy(out, thread)
	msg.SortByTimestamp(out)
	return out, nil
}

// Send implements MessageStore.
func (s *Memory) Send(_ context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error) {
	m := msg.Message{
		ID:         uuid.New().String(),
		From:       from,
		To:         to,
		Text:       text,
		Attachment: att,
		Timestamp:  s.now(),
	}
	key := msg.Key(from, to)
	s.mu.Lock()
	s.threads[key] = append(s.threads[key], m)
	s.mu.Unlock()
	return m, nil
}

// MarkRead implements MessageStore.
func (s *Memory) MarkRead(_ context.Context, user, counterpart string) error {
	key := msg.Key(user, counterpart)
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := s.threads[key]
	for i := range thread {
		if thread[i].To == user && thread[i].From == counterpart {
			thread[i].Read = true
		}
	}
	return nil
}

// DeleteMessage implements MessageStore. The sender check is advisory
// here (everything in this store belongs to the local browser), but
// applied anyway so both backends behave alike.
func (s *Memory) DeleteMessage(_ context.Context, caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, thread := range s.threads {
		for i := range thread {
			if thread[i].ID != id {
				continue
			}
			if thread[i].From != caller {
				return ErrUnauthorized
			}
			s.threads[key] = append(thread[:i:i], thread[i+1:]...)
			if len(s.threads[key]) == 0 {
				delete(s.threads, key)
			}
			return nil
		}
	}
	// Already gone: successful no-op.
	return nil
}

// DeleteThread implements MessageStore.
func (s *Memory) DeleteThread(_ context.Context, a, b string) error {
	s.mu.Lock()
	delete(s.threads, msg.Key(a, b))
	s.mu.Unlock()
	return nil
}

// ListConversations implements MessageStore.
func (s *Memory) ListConversations(_ context.Context, user string) ([]ThreadMessages, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ThreadMessages
	for key, thread := range s.threads {
		var counterpart string
		switch user {
		case key.A:
			counterpart = key.B
		case key.B:
			counterpart = key.A
		default:
			continue
		}
		msgs := make([]msg.Message, len(thread))
		copy(msgs, thread)
		out = append(out, ThreadMessages{Counterpart: counterpart, Messages: msgs})
	}
	return out, nil
}
