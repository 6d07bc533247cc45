package conv

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/directory"
	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/store"
)

func testAggregator(t *testing.T) (*Aggregator, *store.Memory, *presence.Recorder) {
	t.Helper()
	st := store.NewMemory()
	rec := presence.NewRecorder()
	dir := directory.NewStatic([]directory.User{
		{ID: "bob", Name: "Bob Marsh", Avatar: "/a/bob.png"},
	})
	return New(st, rec, dir, zap.NewNop()), st, rec
}

func TestSummariesLastMessageAndUnread(t *testing.T) {
	a, st, _ := testAggregator(t)
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "first", nil)
	_, _ = st.Send(ctx, "bob", "alice", "second", nil)
	_, _ = st.Send(ctx, "alice", "bob", "mine", nil)

	convs, err := a.Summaries(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	c := convs[0]
	if c.With != "bob" || c.Display != "Bob Marsh" {
		t.Errorf("counterpart = %q/%q, want bob/Bob Marsh", c.With, c.Display)
	}
	if c.LastMessage != "mine" {
		t.Errorf("last message = %q, want mine", c.LastMessage)
	}
	// alice's own outbound message never counts as unread.
	if c.Unread != 2 {
		t.Errorf("unread = %d, want 2", c.Unread)
	}
}

func TestSummariesUnreadDropsToZeroAfterMarkRead(t *testing.T) {
	a, st, _ := testAggregator(t)
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "hello", nil)
	if err := st.MarkRead(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	convs, _ := a.Summaries(ctx, "alice")
	if len(convs) != 1 || convs[0].Unread != 0 {
		t.Errorf("convs = %+v, want one conversation with zero unread", convs)
	}
}

func TestSummariesSortedByLastTimestamp(t *testing.T) {
	a, st, _ := testAggregator(t)
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "older", nil)
	time.Sleep(2 * time.Millisecond)
	_, _ = st.Send(ctx, "carol", "alice", "newer", nil)

	convs, _ := a.Summaries(ctx, "alice")
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].With != "carol" || convs[1].With != "bob" {
		t.Errorf("order = %s, %s; want carol first", convs[0].With, convs[1].With)
	}
}

func TestSummariesJoinsPresence(t *testing.T) {
	a, st, rec := testAggregator(t)
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "hi", nil)
	_, _ = st.Send(ctx, "carol", "alice", "yo", nil)
	rec.Beat("bob", "online")
	rec.Beat("carol", "away")

	convs, _ := a.Summaries(ctx, "alice")
	byUser := map[string]msg.Conversation{}
	for _, c := range convs {
		byUser[c.With] = c
	}
	if !byUser["bob"].Online || byUser["bob"].Status != "online" {
		t.Errorf("bob = %+v, want online", byUser["bob"])
	}
	// Away is visible as a status but does not count as online.
	if byUser["carol"].Online || byUser["carol"].Status != "away" {
		t.Errorf("carol = %+v, want away and not online", byUser["carol"])
	}
}

func TestSummariesPresenceFailureDegradesToOffline(t *testing.T) {
	st := store.NewMemory()
	dir := directory.NewStatic(nil)
	failing := presence.RemoteSource{Fetch: func(context.Context) ([]msg.PresenceRecord, error) {
		return nil, errors.New("connection refused")
	}}
	a := New(st, failing, dir, zap.NewNop())
	ctx := context.Background()

	_, _ = st.Send(ctx, "bob", "alice", "hi", nil)

	convs, err := a.Summaries(ctx, "alice")
	if err != nil {
		t.Fatalf("Summaries() error = %v, want degraded pass", err)
	}
	if len(convs) != 1 || convs[0].Online || convs[0].Status != presence.StatusOffline {
		t.Errorf("convs = %+v, want offline counterpart", convs)
	}
}

func TestLastReturnsPreviousPass(t *testing.T) {
	a, st, _ := testAggregator(t)
	ctx := context.Background()

	if got := a.Last(); len(got) != 0 {
		t.Fatalf("Last() before any pass = %+v", got)
	}
	_, _ = st.Send(ctx, "bob", "alice", "hi", nil)
	if _, err := a.Summaries(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if got := a.Last(); len(got) != 1 || got[0].With != "bob" {
		t.Errorf("Last() = %+v, want cached bob conversation", got)
	}
}
