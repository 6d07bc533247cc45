package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/teamdesk/messaging/internal/msg"
)

// Remote is the persisted backend: an HTTP client against a shared
// chatd daemon. Every call is a remote call that may fail; on failure
// nothing local has changed and the next poll tick retries.
type Remote struct {
	base   string
	client *http.Client
}

// NewRemote creates a client for the chatd at base, e.g.
// "http://127.0.0.1:8642".
func NewRemote(base string) *Remote {
	return &Remote{
		base: base,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendRequest struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Text       string          `json:"text"`
	Attachment *msg.Attachment `json:"attachment,omitempty"`
}

// FetchThread implements MessageStore.
func (r *Remote) FetchThread(ctx context.Context, a, b string) ([]msg.Message, error) {
	var msgs []msg.Message
	err := r.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/threads/%s/%s", url.PathEscape(a), url.PathEscape(b)),
		nil, &msgs)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send implements MessageStore.
func (r *Remote) Send(ctx context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error) {
	var m msg.Message
	err := r.do(ctx, http.MethodPost, "/v1/messages",
		sendRequest{From: from, To: to, Text: text, Attachment: att}, &m)
	if err != nil {
		return msg.Message{}, err
	}
	return m, nil
}

// MarkRead implements MessageStore.
func (r *Remote) MarkRead(ctx context.Context, user, counterpart string) error {
	path := fmt.Sprintf("/v1/threads/%s/%s/read?user=%s",
		url.PathEscape(user), url.PathEscape(counterpart), url.QueryEscape(user))
	return r.do(ctx, http.MethodPost, path, nil, nil)
}

// DeleteMessage implements MessageStore.
func (r *Remote) DeleteMessage(ctx context.Context, caller, id string) error {
	path := fmt.Sprintf("/v1/messages/%s?user=%s", url.PathEscape(id), url.QueryEscape(caller))
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteThread implements MessageStore.
func (r *Remote) DeleteThread(ctx context.Context, a, b string) error {
	path := fmt.Sprintf("/v1/threads/%s/%s", url.PathEscape(a), url.PathEscape(b))
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListConversations implements MessageStore.
func (r *Remote) ListConversations(ctx context.Context, user string) ([]ThreadMessages, error) {
	var out []ThreadMessages
	err := r.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(user), nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Heartbeat reports the local user's presence and returns any signals
// chatd queued for it since the last beat.
func (r *Remote) Heartbeat(ctx context.Context, uid, status string) ([]string, error) {
	var resp struct {
		PendingSignals []string `json:"pendingSignals"`
	}
	err := r.do(ctx, http.MethodPost, "/v1/presence/heartbeat",
		map[string]string{"uid": uid, "status": status}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.PendingSignals, nil
}

// User fetches a directory entry from chatd. A 404 comes back as a
// zero user with a nil error; callers fall back to the raw id.
func (r *Remote) User(ctx context.Context, uid string) (id, name, avatar string, err error) {
	var resp struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := r.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(uid), nil, &resp); err != nil {
		return "", "", "", err
	}
	return resp.ID, resp.Name, resp.Avatar, nil
}

// Presence returns every heartbeat record chatd currently holds.
func (r *Remote) Presence(ctx context.Context) ([]msg.PresenceRecord, error) {
	var recs []msg.PresenceRecord
	if err := r.do(ctx, http.MethodGet, "/v1/presence", nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// do performs one request and decodes the response into out (when
// non-nil). HTTP statuses map onto the store error taxonomy.
func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Already-deleted message or thread: successful no-op.
		return nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		return &TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
