// ABOUTME: SQLite transcript archive using modernc.org/sqlite
// ABOUTME: Creates its schema on open and keeps entries in first-saved order per channel

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/2389/streamchat/internal/conversation"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a transcript archive backed by a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the archive at path. Parent directories
// are created if needed. Use ":memory:" for a throwaway archive.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("transcript archive opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			payload BLOB,
			request_message_id TEXT,
			created_at TEXT NOT NULL,

			CHECK (kind IN ('user', 'bot', 'error')),
			UNIQUE (channel_id, message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_channel_seq
			ON entries(channel_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEntry archives e under channelID. Saving an existing message id
// replaces its content and keeps its position.
func (s *SQLiteStore) SaveEntry(ctx context.Context, channelID string, e conversation.Entry) error {
	rec, err := recordFromEntry(channelID, e)
	if err != nil {
		return err
	}
	return s.SaveRecord(ctx, rec)
}

// SaveRecord archives a raw record.
func (s *SQLiteStore) SaveRecord(ctx context.Context, r *Record) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO entries (channel_id, message_id, kind, text, payload, request_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, message_id) DO UPDATE SET
			kind = excluded.kind,
			text = excluded.text,
			payload = excluded.payload,
			request_message_id = excluded.request_message_id
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ChannelID,
		r.MessageID,
		r.Kind,
		r.Text,
		r.Payload,
		nullString(r.RequestMessageID),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}

	s.logger.Debug("archived entry", "channel_id", r.ChannelID, "message_id", r.MessageID, "kind", r.Kind)
	return nil
}

// nullString returns nil for empty strings so the column stays NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListRecords returns the most recent limit records of a channel in the
// order they were first saved. A non-positive limit returns all of them.
func (s *SQLiteStore) ListRecords(ctx context.Context, channelID string, limit int) ([]*Record, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT seq, channel_id, message_id, kind, text, payload, request_message_id, created_at
			FROM (
				SELECT seq, channel_id, message_id, kind, text, payload, request_message_id, created_at
				FROM entries
				WHERE channel_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{channelID, limit}
	} else {
		query = `
			SELECT seq, channel_id, message_id, kind, text, payload, request_message_id, created_at
			FROM entries
			WHERE channel_id = ?
			ORDER BY seq ASC
		`
		args = []any{channelID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		var seq int64
		var requestID *string
		var createdAtStr string

		if err := rows.Scan(&seq, &r.ChannelID, &r.MessageID, &r.Kind, &r.Text, &r.Payload, &requestID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		if requestID != nil {
			r.RequestMessageID = *requestID
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}

	return records, nil
}

// ListEntries is ListRecords converted to conversation entries.
func (s *SQLiteStore) ListEntries(ctx context.Context, channelID string, limit int) ([]conversation.Entry, error) {
	records, err := s.ListRecords(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]conversation.Entry, 0, len(records))
	for _, r := range records {
		e, err := r.Entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListChannels summarizes every archived channel, most recently active first.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]ChannelSummary, error) {
	query := `
		SELECT channel_id, COUNT(*), MAX(created_at), MAX(seq) AS last_seq
		FROM entries
		GROUP BY channel_id
		ORDER BY last_seq DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []ChannelSummary
	for rows.Next() {
		var c ChannelSummary
		var lastAtStr string
		var lastSeq int64
		if err := rows.Scan(&c.ChannelID, &c.Entries, &lastAtStr, &lastSeq); err != nil {
			return nil, fmt.Errorf("scanning channel row: %w", err)
		}
		c.LastAt, err = time.Parse(time.RFC3339Nano, lastAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel rows: %w", err)
	}
	return channels, nil
}

// DeleteChannel removes every entry of a channel. Returns ErrNotFound if
// the channel has none.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, channelID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted channel", "channel_id", channelID, "entries", rowsAffected)
	return nil
}
