package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zenibako/prodsheet-golang/sheet"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots and preferences in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. An empty path
// selects prodsheet.sqlite in the cache directory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "prodsheet.sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// modernc.org/sqlite registers as "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	ctx := context.Background()
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS session_state (
			session TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (session, kind)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare %s: %w", path, err)
		}
	}
	log.Debug("Opened local store", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, session sheet.SessionID) (*sheet.Snapshot, error) {
	var snapshot sheet.Snapshot
	found, err := s.get(ctx, session, snapshotKind, &snapshot)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sheet.ErrSnapshotNotFound
	}
	return &snapshot, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot *sheet.Snapshot) error {
	return s.put(ctx, snapshot.Session, snapshotKind, snapshot)
}

// LoadPreferences returns nil preferences when none were saved.
func (s *SQLiteStore) LoadPreferences(ctx context.Context, session sheet.SessionID) (*sheet.Preferences, error) {
	var prefs sheet.Preferences
	found, err := s.get(ctx, session, preferencesKind, &prefs)
	if err != nil || !found {
		return nil, err
	}
	return &prefs, nil
}

func (s *SQLiteStore) SavePreferences(ctx context.Context, session sheet.SessionID, prefs *sheet.Preferences) error {
	return s.put(ctx, session, preferencesKind, prefs)
}

func (s *SQLiteStore) get(ctx context.Context, session sheet.SessionID, kind string, v any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM session_state WHERE session = ? AND kind = ?`,
		session.String(), kind,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s for %s: %w", kind, session, err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, fmt.Errorf("failed to parse %s for %s: %w", kind, session, err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, session sheet.SessionID, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_state (session, kind, payload, updated_at_unixms) VALUES (?, ?, ?, ?)
		ON CONFLICT(session, kind) DO UPDATE SET payload = excluded.payload, updated_at_unixms = excluded.updated_at_unixms`,
		session.String(), kind, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s for %s: %w", kind, session, err)
	}
	return nil
}
