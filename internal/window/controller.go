// Package window drives one open conversation: its poll loop, read
// receipts, and send/delete operations.
package window

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/bus"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/notify"
	"github.com/teamdesk/messaging/internal/poll"
	"github.com/teamdesk/messaging/internal/store"
)

// Controller is the state machine behind one chat window. All local
// state is session-scoped and lost on close; the message store is the
// only durable party.
type Controller struct {
	self   string
	target string
	store  store.MessageStore
	bus    *bus.Bus
	sup    *poll.Supervisor
	logger *zap.Logger

	interval time.Duration

	mu       sync.Mutex
	state    State
	messages []msg.Message
	lastSeen int
	draft    string
}

// NewController creates a closed window for the thread between self
// and target.
func NewController(self, target string, st store.MessageStore, b *bus.Bus, sup *poll.Supervisor, interval time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		self:     self,
		target:   target,
		store:    st,
		bus:      b,
		sup:      sup,
		logger:   logger,
		interval: interval,
		state:    Closed,
	}
}

// Target returns the counterpart this window shows.
func (c *Controller) Target() string { return c.target }

// State returns the current window state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the bubble list as of the last completed poll.
func (c *Controller) Messages() []msg.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]msg.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Draft returns the preserved draft text, if the last send failed.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) pollName() string {
	return "window:" + c.target
}

// OpenWindow opens the window. Opening is the read receipt: every
// inbound message in the thread is marked read immediately, and the
// window's poller starts.
func (c *Controller) OpenWindow(ctx context.Context) error {
	c.mu.Lock()
	if err := c.state.canTransition(Open); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = Open
	c.lastSeen = 0
	c.mu.Unlock()

	if err := c.store.MarkRead(ctx, c.self, c.target); err != nil {
		// Not fatal: the next poll tick retries while the window is open.
		c.logger.Warn("mark read on open failed", zap.Error(err), zap.String("target", c.target))
	}
	c.sup.Add(c.pollName(), c.interval, c.Tick)
	return nil
}

// Minimize hides the window. Polling continues; read receipts pause
// because the user cannot see the thread.
func (c *Controller) Minimize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.state.canTransition(Minimized); err != nil {
		return err
	}
	c.state = Minimized
	return nil
}

// Restore brings a minimized window back.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Minimized {
		c.mu.Unlock()
		return c.state.canTransition(Open)
	}
	c.state = Open
	c.mu.Unlock()

	if err := c.store.MarkRead(ctx, c.self, c.target); err != nil {
		c.logger.Warn("mark read on restore failed", zap.Error(err), zap.String("target", c.target))
	}
	return nil
}

// CloseWindow closes the window, cancels its poller, and clears all
// session-local state for the target.
func (c *Controller) CloseWindow() {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	c.messages = nil
	c.lastSeen = 0
	c.draft = ""
	c.mu.Unlock()

	c.sup.Stop(c.pollName())
}

// Tick runs one poll pass: fetch the thread, signal an alert for a
// new inbound message before advancing the seen count, then refresh
// the read receipt while the window is visible. A failed fetch keeps
// the last known state.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return
	}
	prev := c.lastSeen
	visible := c.state == Open
	c.mu.Unlock()

	thread, err := c.store.FetchThread(ctx, c.self, c.target)
	if err != nil {
		c.logger.Warn("poll fetch failed", zap.Error(err), zap.String("target", c.target))
		return
	}

	if alert, ok := notify.Decide(prev, thread, c.self); ok {
		c.bus.Emit(bus.KindAlert, alert)
	}

	c.mu.Lock()
	// The window may have closed while the fetch was in flight.
	if !c.state.Active() {
		c.mu.Unlock()
		return
	}
	c.messages = thread
	c.lastSeen = len(thread)
	c.mu.Unlock()

	if visible {
		if err := c.store.MarkRead(ctx, c.self, c.target); err != nil {
			c.logger.Warn("mark read failed", zap.Error(err), zap.String("target", c.target))
		}
	}
}

// Send delivers text to the target. Confirm-then-clear: the store
// call completes before the draft is released, and on failure the
// draft is preserved so the user can retry.
func (c *Controller) Send(ctx context.Context, text string, att *msg.Attachment) error {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()

	m, err := c.store.Send(ctx, c.self, c.target, text, att)
	if err != nil {
		c.bus.Emit(bus.KindMessageFailed, map[string]string{
			"to":    c.target,
			"error": err.Error(),
		})
		return err
	}

	c.mu.Lock()
	c.draft = ""
	c.messages = append(c.messages, m)
	c.lastSeen = len(c.messages)
	c.mu.Unlock()

	c.bus.Emit(bus.KindMessageSent, m)
	return nil
}

// DeleteMessage removes one of the user's own messages from the
// thread and the local bubble list. An unauthorized delete is a
// no-op, not a failure.
func (c *Controller) DeleteMessage(ctx context.Context, id string) error {
	err := c.store.DeleteMessage(ctx, c.self, id)
	if errors.Is(err, store.ErrUnauthorized) {
		c.logger.Warn("delete rejected", zap.String("id", id))
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i:i], c.messages[i+1:]...)
			break
		}
	}
	c.lastSeen = len(c.messages)
	c.mu.Unlock()

	c.bus.Emit(bus.KindMessageDeleted, id)
	return nil
}

// DeleteThread removes the whole conversation for both participants
// and closes the window.
func (c *Controller) DeleteThread(ctx context.Context) error {
	if err := c.store.DeleteThread(ctx, c.self, c.target); err != nil {
		return err
	}
	c.bus.Emit(bus.KindThreadDeleted, c.target)
	c.CloseWindow()
	return nil
}
