// Package notify decides when a poll result warrants an audible or
// visual alert, without duplicating alerts across the several pollers
// that observe the same thread.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/bus"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/store"
)

// Decide is the stateless alert rule: signal iff the thread grew
// since the previous observation AND the newest message is inbound
// AND it is still unread. Dedup is by previously observed count, not
// by a seen-id set; a simultaneous delete+send can mask a message,
// which is an accepted imprecision of the rule.
func Decide(prevCount int, cur []msg.Message, self string) (bus.Alert, bool) {
	if len(cur) <= prevCount || len(cur) == 0 {
		return bus.Alert{}, false
	}
	newest := cur[len(cur)-1]
	if newest.From == self || newest.To != self || newest.Read {
		return bus.Alert{}, false
	}
	return bus.Alert{
		From:      newest.From,
		To:        newest.To,
		MessageID: newest.ID,
		Preview:   newest.Text,
	}, true
}

// Watcher runs Decide over every conversation on each aggregation
// pass and publishes alert.message events. It tracks one previous
// count per thread; two consecutive identical polls never alert
// twice for the same message.
type Watcher struct {
	store  store.MessageStore
	bus    *bus.Bus
	user   string
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]int // counterpart -> last observed thread length
}

// NewWatcher creates a watcher for user's inbound messages.
func NewWatcher(st store.MessageStore, b *bus.Bus, user string, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:  st,
		bus:    b,
		user:   user,
		logger: logger,
		seen:   make(map[string]int),
	}
}

// Tick runs one detection pass. A failed scan changes nothing; the
// next tick retries.
func (w *Watcher) Tick(ctx context.Context) {
	threads, err := w.store.ListConversations(ctx, w.user)
	if err != nil {
		w.logger.Warn("notification scan failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range threads {
		prev := w.seen[t.Counterpart]
		if alert, ok := Decide(prev, t.Messages, w.user); ok {
			w.bus.Emit(bus.KindAlert, alert)
		}
		w.seen[t.Counterpart] = len(t.Messages)
	}
}

// Forget drops the tracked count for a counterpart, e.g. after its
// thread was deleted.
func (w *Watcher) Forget(counterpart string) {
	w.mu.Lock()
	delete(w.seen, counterpart)
	w.mu.Unlock()
}
