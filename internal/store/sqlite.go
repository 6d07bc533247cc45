package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migsqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/store/migrations"
)

// SQLite is chatd's server-side storage: the substrate behind the
// persisted backend that every remote client shares.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the chatd database with WAL mode and
// recommended pragmas, and runs pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migsqlite.WithInstance(s.db, &migsqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// FetchThread implements MessageStore.
func (s *SQLite) FetchThread(ctx context.Context, a, b string) ([]msg.Message, error) {
	key := msg.Key(a, b)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, body, attachment, read_flag, timestamp
		FROM messages
		WHERE thread_a = ? AND thread_b = ?
		ORDER BY timestamp ASC, rowid ASC`, key.A, key.B)
	if err != nil {
		return nil, fmt.Errorf("fetch thread: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// Send implements MessageStore.
func (s *SQLite) Send(ctx context.Context, from, to, text string, att *msg.Attachment) (msg.Message, error) {
	m := msg.Message{
		ID:         uuid.New().String(),
		From:       from,
		To:         to,
		Text:       text,
		Attachment: att,
		Timestamp:  time.Now().UnixMilli(),
	}
	var attJSON any
	if att != nil {
		raw, err := json.Marshal(att)
		if err != nil {
			return msg.Message{}, fmt.Errorf("encode attachment: %w", err)
		}
		attJSON = string(raw)
	}
	key := msg.Key(from, to)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_user, to_user, thread_a, thread_b, body, attachment, read_flag, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ID, m.From, m.To, key.A, key.B, m.Text, attJSON, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return msg.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// MarkRead implements MessageStore. One UPDATE covers the whole
// inbound set, so the operation is idempotent by construction.
func (s *SQLite) MarkRead(ctx context.Context, user, counterpart string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_flag = 1
		WHERE to_user = ? AND from_user = ? AND read_flag = 0`, user, counterpart)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// DeleteMessage implements MessageStore. The sender check is enforced
// here, not trusted from the client.
func (s *SQLite) DeleteMessage(ctx context.Context, caller, id string) error {
	var from string
	err := s.db.QueryRowContext(ctx, `SELECT from_user FROM messages WHERE id = ?`, id).Scan(&from)
	if err == sql.ErrNoRows {
		// Already gone: successful no-op.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if from != caller {
		return ErrUnauthorized
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteThread implements MessageStore. A single DELETE inside the
// implicit transaction keeps the removal atomic for both users.
func (s *SQLite) DeleteThread(ctx context.Context, a, b string) error {
	key := msg.Key(a, b)
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE thread_a = ? AND thread_b = ?`, key.A, key.B)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// ListConversations implements MessageStore.
func (s *SQLite) ListConversations(ctx context.Context, user string) ([]ThreadMessages, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, body, attachment, read_flag, timestamp
		FROM messages
		WHERE from_user = ? OR to_user = ?
		ORDER BY timestamp ASC, rowid ASC`, user, user)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	byCounterpart := make(map[string]int)
	var out []ThreadMessages
	for _, m := range msgs {
		counterpart := m.From
		if counterpart == user {
			counterpart = m.To
		}
		i, ok := byCounterpart[counterpart]
		if !ok {
			i = len(out)
			byCounterpart[counterpart] = i
			out = append(out, ThreadMessages{Counterpart: counterpart})
		}
		out[i].Messages = append(out[i].Messages, m)
	}
	return out, nil
}

// UpsertUser seeds or updates a directory entry.
func (s *SQLite) UpsertUser(ctx context.Context, uid, name, avatar string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, name, avatar) VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET name = excluded.name, avatar = excluded.avatar`,
		uid, name, avatar)
	return err
}

// GetUser returns a directory entry, or ErrNotFound.
func (s *SQLite) GetUser(ctx context.Context, uid string) (name, avatar string, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT name, avatar FROM users WHERE uid = ?`, uid).Scan(&name, &avatar)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	return name, avatar, err
}

func scanMessages(rows *sql.Rows) ([]msg.Message, error) {
	var msgs []msg.Message
	for rows.Next() {
		var m msg.Message
		var att sql.NullString
		var read int
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &att, &read, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Read = read != 0
		if att.Valid && att.String != "" {
			var a msg.Attachment
			if err := json.Unmarshal([]byte(att.String), &a); err != nil {
				return nil, fmt.Errorf("decode attachment: %w", err)
			}
			m.Attachment = &a
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
