package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/zenibako/prodsheet-golang/sheet"
)

// FileStore keeps snapshots and preferences as JSON files, one pair per
// session, in a cache directory.
type FileStore struct {
	dir string
}

// DefaultCacheDir returns ~/.cache/prodsheet.
func DefaultCacheDir() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join(usr.HomeDir, ".cache", "prodsheet"), nil
}

// NewFileStore creates a store rooted at dir, creating it if needed. An
// empty dir selects DefaultCacheDir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(session sheet.SessionID, kind string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", session, kind))
}

func (s *FileStore) LoadSnapshot(ctx context.Context, session sheet.SessionID) (*sheet.Snapshot, error) {
	var snapshot sheet.Snapshot
	if err := s.read(s.path(session, snapshotKind), &snapshot); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, sheet.ErrSnapshotNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

func (s *FileStore) SaveSnapshot(ctx context.Context, snapshot *sheet.Snapshot) error {
	return s.write(s.path(snapshot.Session, snapshotKind), snapshot)
}

// LoadPreferences returns nil preferences when none were saved.
func (s *FileStore) LoadPreferences(ctx context.Context, session sheet.SessionID) (*sheet.Preferences, error) {
	var prefs sheet.Preferences
	if err := s.read(s.path(session, preferencesKind), &prefs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &prefs, nil
}

func (s *FileStore) SavePreferences(ctx context.Context, session sheet.SessionID, prefs *sheet.Preferences) error {
	return s.write(s.path(session, preferencesKind), prefs)
}

func (s *FileStore) read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// write replaces the file atomically so a crash never leaves half a snapshot.
func (s *FileStore) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	log.Debugf("Saved %s", path)
	return nil
}
