package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/directory"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/store"
)

// testBackend spins a full chatd handler over a temp SQLite store and
// returns a Remote client pointed at it: the same wiring a persisted
// deployment has.
func testBackend(t *testing.T) (*store.Remote, *store.SQLite) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chatd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := NewHandler(st, presence.NewRecorder(), zap.NewNop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return store.NewRemote(srv.URL), st
}

func TestRoundTripSendFetch(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	m, err := remote.Send(ctx, "alice", "bob", "over the wire", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if m.ID == "" || m.Timestamp == 0 {
		t.Errorf("stored message = %+v, want server-assigned id and timestamp", m)
	}

	thread, err := remote.FetchThread(ctx, "bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 1 || thread[0].Text != "over the wire" {
		t.Errorf("thread = %+v", thread)
	}
}

func TestMarkReadOverWire(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	_, _ = remote.Send(ctx, "alice", "bob", "one", nil)
	_, _ = remote.Send(ctx, "alice", "bob", "two", nil)

	if err := remote.MarkRead(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	thread, _ := remote.FetchThread(ctx, "alice", "bob")
	for _, m := range thread {
		if !m.Read {
			t.Errorf("message %q unread after MarkRead", m.Text)
		}
	}
}

func TestDeleteMessageForbiddenForNonSender(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	m, _ := remote.Send(ctx, "alice", "bob", "alice's", nil)

	err := remote.DeleteMessage(ctx, "bob", m.ID)
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Errorf("DeleteMessage by non-sender = %v, want ErrUnauthorized", err)
	}
	if err := remote.DeleteMessage(ctx, "alice", m.ID); err != nil {
		t.Errorf("DeleteMessage by sender = %v", err)
	}
	// Gone already: the 404 maps to a nil no-op.
	if err := remote.DeleteMessage(ctx, "alice", m.ID); err != nil {
		t.Errorf("repeat DeleteMessage = %v, want nil", err)
	}
}

func TestDeleteThreadQueuesSignalsForBothUsers(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	_, _ = remote.Send(ctx, "alice", "bob", "doomed", nil)
	if err := remote.DeleteThread(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	thread, _ := remote.FetchThread(ctx, "bob", "alice")
	if len(thread) != 0 {
		t.Errorf("thread = %d messages after delete, want 0", len(thread))
	}

	for _, uid := range []string{"alice", "bob"} {
		signals, err := remote.Heartbeat(ctx, uid, "online")
		if err != nil {
			t.Fatal(err)
		}
		if len(signals) != 1 {
			t.Errorf("%s signals = %v, want one thread.deleted", uid, signals)
		}
	}

	// Drained: the next heartbeat is empty.
	signals, _ := remote.Heartbeat(ctx, "alice", "online")
	if len(signals) != 0 {
		t.Errorf("signals after drain = %v, want none", signals)
	}
}

func TestConversationsOverWire(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	_, _ = remote.Send(ctx, "bob", "alice", "hi", nil)
	_, _ = remote.Send(ctx, "carol", "alice", "yo", nil)

	convs, err := remote.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Errorf("got %d conversations, want 2", len(convs))
	}
}

func TestPresenceRoundTrip(t *testing.T) {
	remote, _ := testBackend(t)
	ctx := context.Background()

	if _, err := remote.Heartbeat(ctx, "alice", "away"); err != nil {
		t.Fatal(err)
	}

	recs, err := remote.Presence(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UID != "alice" || recs[0].Status != "away" {
		t.Errorf("presence = %+v", recs)
	}
}

func TestDirectoryEndpoint(t *testing.T) {
	remote, st := testBackend(t)
	ctx := context.Background()

	if err := st.UpsertUser(ctx, "u1", "Ada", "/a/u1.png"); err != nil {
		t.Fatal(err)
	}

	id, name, avatar, err := remote.User(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "u1" || name != "Ada" || avatar != "/a/u1.png" {
		t.Errorf("user = %q/%q/%q", id, name, avatar)
	}

	// Unknown user: 404 becomes a zero value, and the directory
	// resolver falls back to the raw id.
	id, _, _, err = remote.User(ctx, "ghost")
	if err != nil || id != "" {
		t.Errorf("User(ghost) = %q, %v; want zero, nil", id, err)
	}
	u := directory.Remote{Fetch: func(ctx context.Context, uid string) (directory.User, error) {
		id, name, avatar, err := remote.User(ctx, uid)
		return directory.User{ID: id, Name: name, Avatar: avatar}, err
	}}.Resolve(ctx, "ghost")
	if u.Name != "ghost" {
		t.Errorf("resolved name = %q, want raw id fallback", u.Name)
	}
}

func TestHeartbeatRejectsEmptyUID(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chatd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h := NewHandler(st, presence.NewRecorder(), zap.NewNop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/presence/heartbeat", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
