// Package session holds the explicit per-user session context: which
// user this surface belongs to, which chat windows are open, and the
// pollers that serve them. Nothing here is ambient or global; closing
// the session deterministically stops every timer it started.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/bus"
	"github.com/teamdesk/messaging/internal/conv"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/notify"
	"github.com/teamdesk/messaging/internal/poll"
	"github.com/teamdesk/messaging/internal/store"
	"github.com/teamdesk/messaging/internal/window"
)

// Options configures a session's poll cadence.
type Options struct {
	ConversationInterval time.Duration
	WindowInterval       time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConversationInterval <= 0 {
		o.ConversationInterval = 3 * time.Second
	}
	if o.WindowInterval <= 0 {
		o.WindowInterval = 3 * time.Second
	}
	return o
}

// ErrClosed is returned when opening a window on a closed session.
var ErrClosed = errors.New("session closed")

// Session is one user's messaging surface.
type Session struct {
	User string

	store      store.MessageStore
	bus        *bus.Bus
	aggregator *conv.Aggregator
	watcher    *notify.Watcher
	sup        *poll.Supervisor
	logger     *zap.Logger
	opts       Options

	mu      sync.Mutex
	windows map[string]*window.Controller
	closed  bool
}

// New creates a session for user. The aggregation and notification
// pollers start when the first consumer attaches via WatchConversations.
func New(user string, st store.MessageStore, agg *conv.Aggregator, b *bus.Bus, logger *zap.Logger, opts Options) *Session {
	return &Session{
		User:       user,
		store:      st,
		bus:        b,
		aggregator: agg,
		watcher:    notify.NewWatcher(st, b, user, logger),
		sup:        poll.NewSupervisor(logger),
		logger:     logger,
		opts:       opts.withDefaults(),
		windows:    make(map[string]*window.Controller),
	}
}

// Bus returns the session's event bus, for surfaces that render alerts.
func (s *Session) Bus() *bus.Bus { return s.bus }

// changed reports whether two aggregation passes differ in anything a
// conversation list renders.
func changed(prev, cur []msg.Conversation) bool {
	if len(prev) != len(cur) {
		return true
	}
	for i := range cur {
		if prev[i] != cur[i] {
			return true
		}
	}
	return false
}

// WatchConversations starts the aggregation pass and the notification
// watcher on their shared cadence. Idempotent; the pollers keep
// running until the session closes.
func (s *Session) WatchConversations() {
	s.sup.Add("conversations", s.opts.ConversationInterval, func(ctx context.Context) {
		prev := s.aggregator.Last()
		cur, err := s.aggregator.Summaries(ctx, s.User)
		if err != nil {
			s.logger.Warn("aggregation pass failed", zap.Error(err))
			return
		}
		if changed(prev, cur) {
			s.bus.Emit(bus.KindConversations, cur)
		}
		s.watcher.Tick(ctx)
	})
}

// Aggregator exposes the session's aggregator for read access.
func (s *Session) Aggregator() *conv.Aggregator { return s.aggregator }

// OpenWindow opens (or returns the already-open) chat window with
// target and starts its poller.
func (s *Session) OpenWindow(ctx context.Context, target string) (*window.Controller, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	c, ok := s.windows[target]
	if !ok {
		c = window.NewController(s.User, target, s.store, s.bus, s.sup, s.opts.WindowInterval, s.logger)
		s.windows[target] = c
	}
	s.mu.Unlock()

	switch c.State() {
	case window.Closed:
		if err := c.OpenWindow(ctx); err != nil {
			return nil, err
		}
	case window.Minimized:
		if err := c.Restore(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Window returns the controller for target, if one exists.
func (s *Session) Window(target string) (*window.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.windows[target]
	return c, ok
}

// CloseWindow closes the window for target and forgets its local state.
func (s *Session) CloseWindow(target string) {
	s.mu.Lock()
	c, ok := s.windows[target]
	if ok {
		delete(s.windows, target)
	}
	s.mu.Unlock()
	if ok {
		c.CloseWindow()
	}
}

// DeleteThread deletes the whole conversation with target, closing
// its window and resetting the notification watcher's count so a
// future thread with the same user alerts from scratch.
func (s *Session) DeleteThread(ctx context.Context, target string) error {
	s.mu.Lock()
	c, ok := s.windows[target]
	if ok {
		delete(s.windows, target)
	}
	s.mu.Unlock()

	if ok {
		if err := c.DeleteThread(ctx); err != nil {
			return err
		}
	} else if err := s.store.DeleteThread(ctx, s.User, target); err != nil {
		return err
	}
	s.watcher.Forget(target)
	return nil
}

// Close stops every poller the session owns and closes all windows.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	windows := make([]*window.Controller, 0, len(s.windows))
	for target, c := range s.windows {
		windows = append(windows, c)
		delete(s.windows, target)
	}
	s.mu.Unlock()

	for _, c := range windows {
		c.CloseWindow()
	}
	s.sup.StopAll()
}
