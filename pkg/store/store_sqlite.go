package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// subscriptionsKey is the single fixed key the subscription list lives
// under, JSON-encoded as one array value.
const subscriptionsKey = "graph-subscriptions"

// SQLiteSessionStore backs the session store with a small key/value table
// in sqlite.
type SQLiteSessionStore struct {
	db *sql.DB
}

var _ SessionStore = &SQLiteSessionStore{}

func NewSQLiteSessionStore(dsn string) (*SQLiteSessionStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "session store: open")
	}
	s := &SQLiteSessionStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteSessionStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS session_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	return errors.Wrap(err, "session store: migrate")
}

// Load returns the cached subscription records in saved order. A missing
// row, an unreadable database or a malformed value all degrade to an empty
// list so the caller starts over with no known subscriptions.
func (s *SQLiteSessionStore) Load(ctx context.Context) []model.SubscriptionRecord {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_state WHERE key = ?`, subscriptionsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("session store unreadable, treating as empty")
		return nil
	}
	var records []model.SubscriptionRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		log.Warn().Err(err).Msg("session store entry malformed, treating as empty")
		return nil
	}
	return records
}

// Save replaces the full snapshot.
func (s *SQLiteSessionStore) Save(ctx context.Context, records []model.SubscriptionRecord) error {
	if records == nil {
		records = []model.SubscriptionRecord{}
	}
	value, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "session store: marshal")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		subscriptionsKey, string(value))
	return errors.Wrap(err, "session store: save")
}
