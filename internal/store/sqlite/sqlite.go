package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/store"
)

// Schema creates the snapshot tables. It is safe to apply more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS chats (
	id                INTEGER PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	kind              TEXT NOT NULL DEFAULT 'direct',
	members           TEXT NOT NULL DEFAULT '',
	last_message_date DATETIME,
	unread_count      INTEGER NOT NULL DEFAULT 0,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chats_last_message ON chats(last_message_date DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database at dbPath and runs setup before the first ping.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; :memory: requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveChats replaces the snapshot in one transaction.
func (s *SQLiteStore) SaveChats(ctx context.Context, chats []store.ChatRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chats (id, name, kind, members, last_message_date, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chats {
		var lastDate any
		if !c.LastMessageDate.IsZero() {
			lastDate = c.LastMessageDate.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Name, string(c.Kind), joinIDs(c.Members), lastDate, c.UnreadCount, now,
		); err != nil {
			return fmt.Errorf("insert chat %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadChats returns the snapshot, most recently active first.
func (s *SQLiteStore) LoadChats(ctx context.Context) ([]store.ChatRecord, error) {
	query := `
		SELECT id, name, kind, members, last_message_date, unread_count, updated_at
		FROM chats
		ORDER BY last_message_date IS NULL, last_message_date DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []store.ChatRecord
	for rows.Next() {
		var (
			c        store.ChatRecord
			kind     string
			members  string
			lastDate sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &members, &lastDate, &c.UnreadCount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.Kind = core.ChatKind(kind)
		if c.Members, err = splitIDs(members); err != nil {
			return nil, fmt.Errorf("chat %d members: %w", c.ID, err)
		}
		if lastDate.Valid {
			c.LastMessageDate = lastDate.Time
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat from the snapshot. Missing ids are not an error.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
