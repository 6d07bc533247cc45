package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/bus"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/poll"
	"github.com/teamdesk/messaging/internal/store"
)

// failingStore wraps a Memory store and fails selected operations.
type failingStore struct {
	*store.Memory
	failSend  bool
	failFetch bool
}

func (f *failingStore) Send(ctx context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error) {
	if f.failSend {
		return msg.Message{}, &store.TransportError{Op: "send", Err: errors.New("connection refused")}
	}
	return f.Memory.Send(ctx, from, to, text, att)
}

func (f *failingStore) FetchThread(ctx context.Context, a, b string) ([]msg.Message, error) {
	if f.failFetch {
		return nil, &store.TransportError{Op: "fetch", Err: errors.New("connection refused")}
	}
	return f.Memory.FetchThread(ctx, a, b)
}

func testController(t *testing.T, st store.MessageStore) (*Controller, *bus.Bus, *poll.Supervisor) {
	t.Helper()
	b := bus.New()
	sup := poll.NewSupervisor(zap.NewNop())
	t.Cleanup(sup.StopAll)
	c := NewController("alice", "bob", st, b, sup, time.Hour, zap.NewNop())
	return c, b, sup
}

func TestTransitions(t *testing.T) {
	c, _, _ := testController(t, store.NewMemory())
	ctx := context.Background()

	if c.State() != Closed {
		t.Fatalf("initial state = %s, want CLOSED", c.State())
	}
	if err := c.Minimize(); err == nil {
		t.Error("Minimize() on closed window succeeded")
	}
	if err := c.OpenWindow(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.OpenWindow(ctx); err == nil {
		t.Error("OpenWindow() on open window succeeded")
	}
	if err := c.Minimize(); err != nil {
		t.Fatal(err)
	}
	if !c.State().Active() {
		t.Error("minimized window not active for polling")
	}
	if err := c.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	c.CloseWindow()
	if c.State() != Closed {
		t.Errorf("state after close = %s, want CLOSED", c.State())
	}
}

func TestOpenIsReadReceipt(t *testing.T) {
	st := store.NewMemory()
	c, _, _ := testController(t, st)
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "unread until opened", nil)
	if err := c.OpenWindow(ctx); err != nil {
		t.Fatal(err)
	}

	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if len(thread) != 1 || !thread[0].Read {
		t.Errorf("thread = %+v, want message read after open", thread)
	}
}

func TestOpenRegistersPollerCloseCancelsIt(t *testing.T) {
	c, _, sup := testController(t, store.NewMemory())
	ctx := context.Background()

	_ = c.OpenWindow(ctx)
	if !sup.Running("window:bob") {
		t.Fatal("poller not registered on open")
	}
	c.CloseWindow()
	if sup.Running("window:bob") {
		t.Error("poller still registered after close")
	}
}

func TestTickAlertsOnNewInboundThenMarksRead(t *testing.T) {
	st := store.NewMemory()
	c, b, _ := testController(t, st)
	ctx := context.Background()

	ch, unsub := b.Subscribe("alert.", 16)
	defer unsub()

	_ = c.OpenWindow(ctx)
	c.Tick(ctx)

	_, _ = st.Send(ctx, "bob", "alice", "ping", nil)
	c.Tick(ctx)

	select {
	case evt := <-ch:
		alert := evt.Payload.(bus.Alert)
		if alert.From != "bob" || alert.Preview != "ping" {
			t.Errorf("alert = %+v", alert)
		}
	case <-time.After(time.Second):
		t.Fatal("no alert for new inbound message")
	}

	// The open window marked it read on the same tick.
	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if !thread[len(thread)-1].Read {
		t.Error("inbound message still unread while window open")
	}

	// Identical next poll: no duplicate alert.
	c.Tick(ctx)
	select {
	case evt := <-ch:
		t.Errorf("duplicate alert %+v", evt.Payload)
	default:
	}
}

func TestMinimizedPollsWithoutReadReceipt(t *testing.T) {
	st := store.NewMemory()
	c, _, _ := testController(t, st)
	ctx := context.Background()

	_ = c.OpenWindow(ctx)
	_ = c.Minimize()

	_, _ = st.Send(ctx, "bob", "alice", "while minimized", nil)
	c.Tick(ctx)

	if got := len(c.Messages()); got != 1 {
		t.Errorf("local messages = %d, want 1 (still polling)", got)
	}
	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if thread[0].Read {
		t.Error("message marked read while window minimized")
	}

	// Restoring the window is a read receipt again.
	_ = c.Restore(ctx)
	thread, _ = st.FetchThread(ctx, "alice", "bob")
	if !thread[0].Read {
		t.Error("message not marked read on restore")
	}
}

func TestSendFailureKeepsDraft(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failSend: true}
	c, b, _ := testController(t, fs)
	ctx := context.Background()

	ch, unsub := b.Subscribe("message.", 16)
	defer unsub()

	_ = c.OpenWindow(ctx)
	if err := c.Send(ctx, "important draft", nil); err == nil {
		t.Fatal("Send() succeeded against failing store")
	}
	if c.Draft() != "important draft" {
		t.Errorf("draft = %q, want preserved text", c.Draft())
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageFailed {
			t.Errorf("event = %q, want send_failed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no send_failed event")
	}

	// Retry succeeds and clears the draft.
	fs.failSend = false
	if err := c.Send(ctx, c.Draft(), nil); err != nil {
		t.Fatal(err)
	}
	if c.Draft() != "" {
		t.Errorf("draft = %q after successful send, want empty", c.Draft())
	}
	if got := len(c.Messages()); got != 1 {
		t.Errorf("local messages = %d, want 1", got)
	}
}

func TestFetchFailureKeepsLastKnownState(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	c, _, _ := testController(t, fs)
	ctx := context.Background()

	_, _ = fs.Memory.Send(ctx, "bob", "alice", "known", nil)
	_ = c.OpenWindow(ctx)
	c.Tick(ctx)
	if len(c.Messages()) != 1 {
		t.Fatal("setup: first tick did not load thread")
	}

	fs.failFetch = true
	c.Tick(ctx)
	if got := len(c.Messages()); got != 1 {
		t.Errorf("messages after failed fetch = %d, want stale-but-present 1", got)
	}
}

func TestDeleteMessageRemovesOwnBubble(t *testing.T) {
	st := store.NewMemory()
	c, _, _ := testController(t, st)
	ctx := context.Background()

	_ = c.OpenWindow(ctx)
	if err := c.Send(ctx, "oops", nil); err != nil {
		t.Fatal(err)
	}
	id := c.Messages()[0].ID

	if err := c.DeleteMessage(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got := len(c.Messages()); got != 0 {
		t.Errorf("local messages = %d, want 0", got)
	}
	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if len(thread) != 0 {
		t.Errorf("store thread = %d messages, want 0", len(thread))
	}
}

func TestDeleteForeignMessageIsNoOp(t *testing.T) {
	st := store.NewMemory()
	c, _, _ := testController(t, st)
	ctx := context.Background()

	m, _ := st.Send(ctx, "bob", "alice", "bob's", nil)
	_ = c.OpenWindow(ctx)
	c.Tick(ctx)

	if err := c.DeleteMessage(ctx, m.ID); err != nil {
		t.Errorf("DeleteMessage of foreign message = %v, want nil no-op", err)
	}
	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if len(thread) != 1 {
		t.Errorf("foreign message deleted from store")
	}
}

func TestDeleteThreadClosesWindow(t *testing.T) {
	st := store.NewMemory()
	c, b, sup := testController(t, st)
	ctx := context.Background()

	ch, unsub := b.Subscribe("thread.", 16)
	defer unsub()

	_ = c.OpenWindow(ctx)
	_ = c.Send(ctx, "to be purged", nil)

	if err := c.DeleteThread(ctx); err != nil {
		t.Fatal(err)
	}
	if c.State() != Closed {
		t.Errorf("state = %s after DeleteThread, want CLOSED", c.State())
	}
	if sup.Running("window:bob") {
		t.Error("poller survived DeleteThread")
	}
	if got := len(c.Messages()); got != 0 {
		t.Errorf("local state = %d messages, want cleared", got)
	}
	thread, _ := st.FetchThread(ctx, "alice", "bob")
	if len(thread) != 0 {
		t.Errorf("store thread = %d messages, want 0", len(thread))
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindThreadDeleted {
			t.Errorf("event = %q, want thread.deleted", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no thread.deleted event")
	}
}

func TestTwoWindowsConvergeOnSameThread(t *testing.T) {
	st := store.NewMemory()
	b := bus.New()
	sup := poll.NewSupervisor(zap.NewNop())
	defer sup.StopAll()
	ctx := context.Background()

	// Two browser tabs for alice, both watching bob.
	tab1 := NewController("alice", "bob", st, b, sup, time.Hour, zap.NewNop())
	tab2 := NewController("alice", "bob", st, b, sup, time.Hour, zap.NewNop())
	_ = tab1.OpenWindow(ctx)
	_ = tab2.OpenWindow(ctx)

	_, _ = st.Send(ctx, "bob", "alice", "fan out", nil)
	tab1.Tick(ctx)
	tab2.Tick(ctx)

	m1, m2 := tab1.Messages(), tab2.Messages()
	if len(m1) != 1 || len(m2) != 1 || m1[0].ID != m2[0].ID {
		t.Errorf("tabs diverge: %+v vs %+v", m1, m2)
	}
}
