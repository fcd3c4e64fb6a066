package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"flowbot/pkg/conversation"
	"flowbot/pkg/driver"

	_ "modernc.org/sqlite"
)

// SQLite is the durable context manager. Each row holds the serialized
// {"interaction", "items"} state for one (channel, chat) pair.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLite opens (or creates) the database at dbPath and applies the
// schema.
func NewSQLite(dbPath string, log *slog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite writes are single-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log == nil {
		log = slog.Default()
	}

	store := &SQLite{db: db, log: log.With("component", "store.sqlite")}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contexts (
		channel     TEXT NOT NULL,
		chat        TEXT NOT NULL,
		state       TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (channel, chat)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Resolve loads the context for the (channel, chat) pair addressed by the
// payload, creating a fresh one when no row exists yet.
func (s *SQLite) Resolve(ctx context.Context, channelName string, drv driver.Driver, payload []byte) (*conversation.Context, error) {
	user, err := drv.GetUser(payload)
	if err != nil {
		return nil, fmt.Errorf("extract user: %w", err)
	}

	chat, err := drv.GetChat(payload)
	if err != nil {
		return nil, fmt.Errorf("extract chat: %w", err)
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT state FROM contexts WHERE channel = ? AND chat = ?`,
		channelName, chat.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.New(channelName, chat, user, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context state: %w", err)
	}

	var state conversation.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode context state: %w", err)
	}

	return conversation.FromState(channelName, chat, user, state), nil
}

// Save upserts the context's serialized state under its identity key.
func (s *SQLite) Save(ctx context.Context, conv *conversation.Context) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode context state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (channel, chat, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (channel, chat) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		conv.Channel(), conv.Chat().ID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save context state: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
