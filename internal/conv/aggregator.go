// Package conv builds the per-user conversation list by scanning the
// message store and joining presence and directory information.
package conv

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/directory"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/store"
)

// Aggregator recomputes conversation summaries from scratch on every
// pass. It keeps no derived state beyond the last completed result,
// so two overlapping passes simply race to publish and the later one
// wins; staleness self-heals within one polling interval.
type Aggregator struct {
	store     store.MessageStore
	presence  presence.Source
	directory directory.Resolver
	logger    *zap.Logger

	now func() time.Time

	mu   sync.RWMutex
	last []msg.Conversation
}

// New creates an aggregator over the given collaborators.
func New(st store.MessageStore, pr presence.Source, dir directory.Resolver, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:     st,
		presence:  pr,
		directory: dir,
		logger:    logger,
		now:       time.Now,
	}
}

// Summaries runs one aggregation pass for user and returns the fresh
// conversation list, newest thread first.
func (a *Aggregator) Summaries(ctx context.Context, user string) ([]msg.Conversation, error) {
	threads, err := a.store.ListConversations(ctx, user)
	if err != nil {
		return nil, err
	}

	records := map[string]*msg.PresenceRecord{}
	recs, err := a.presence.Records(ctx)
	if err != nil {
		// Presence is a cosmetic join; a failed read degrades every
		// counterpart to offline rather than failing the pass.
		a.logger.Warn("presence read failed", zap.Error(err))
	} else {
		for i := range recs {
			records[recs[i].UID] = &recs[i]
		}
	}
	now := a.now()

	out := make([]msg.Conversation, 0, len(threads))
	for _, t := range threads {
		if len(t.Messages) == 0 {
			continue
		}
		last := t.Messages[0]
		unread := 0
		for _, m := range t.Messages {
			// >= so that on a timestamp tie the later message in
			// thread order wins.
			if m.Timestamp >= last.Timestamp {
				last = m
			}
			if m.To == user && m.From == t.Counterpart && !m.Read {
				unread++
			}
		}

		status := presence.Derive(records[t.Counterpart], now)
		u := a.directory.Resolve(ctx, t.Counterpart)
		out = append(out, msg.Conversation{
			With:          t.Counterpart,
			Display:       u.Name,
			Avatar:        u.Avatar,
			LastMessage:   last.Text,
			LastTimestamp: last.Timestamp,
			Unread:        unread,
			Online:        presence.IsActive(status),
			Status:        status,
		})
	}

	// Display order only; not a correctness invariant.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTimestamp > out[j].LastTimestamp
	})

	a.mu.Lock()
	a.last = out
	a.mu.Unlock()
	return out, nil
}

// Last returns the most recently completed pass, for surfaces that
// want stale-but-present data when the store is unreachable.
func (a *Aggregator) Last() []msg.Conversation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]msg.Conversation, len(a.last))
	copy(out, a.last)
	return out
}
