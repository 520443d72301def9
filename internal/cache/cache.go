package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// MessageStore persists resolved cross-chain message ids keyed by the
// source transaction hash, so repeated status polls do not re-read the
// bridging logs from the source chain.
type MessageStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*MessageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS message_ids (tx_hash TEXT PRIMARY KEY, message_id TEXT NOT NULL, created_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	return &MessageStore{db: db, lock: flock.New(lockPath)}, nil
}

func (s *MessageStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MessageID returns the cached message id for a source transaction hash,
// or ok=false when the hash has not been resolved yet.
func (s *MessageStore) MessageID(txHash string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, nil
	}
	var id string
	err := s.db.QueryRow("SELECT message_id FROM message_ids WHERE tx_hash = ?", txHash).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache read: %w", err)
	}
	return id, true, nil
}

// PutMessageID records a resolved message id. Message ids are immutable for
// a given transaction, so an existing row is left untouched.
func (s *MessageStore) PutMessageID(txHash, messageID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO message_ids (tx_hash, message_id, created_at) VALUES (?, ?, ?)",
		txHash, messageID, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
