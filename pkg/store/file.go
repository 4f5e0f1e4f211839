package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists one JSON document per uid under <dir>/users/.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the users directory under root if needed.
func NewFileStore(root string) (*FileStore, error) {
	dir := filepath.Join(root, "users")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create user store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(uid string) string {
	return filepath.Join(s.dir, uid+".json")
}

// Load returns the stored record, or a default record when none exists.
func (s *FileStore) Load(ctx context.Context, uid string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(uid))
	if os.IsNotExist(err) {
		return NewUserRecord(uid), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user record: %w", err)
	}

	rec := &UserRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode user record for %s: %w", uid, err)
	}
	return rec, nil
}

// Save writes the record atomically via a temp file rename.
func (s *FileStore) Save(ctx context.Context, rec *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.UID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to stage user record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write user record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write user record: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(rec.UID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to persist user record: %w", err)
	}
	return nil
}
