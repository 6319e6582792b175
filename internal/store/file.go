package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileUserStore keeps every user in one JSON document mapping user ID to
// record. The document is re-read on each access and rewritten wholesale
// on update; mu serializes both so concurrent sign-ups cannot lose writes.
type FileUserStore struct {
	path string

	mu    sync.Mutex
	users map[string]User
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	s := &FileUserStore{path: path, users: make(map[string]User)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load refreshes the in-memory copy from disk.
func (s *FileUserStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes the in-memory copy to disk.
func (s *FileUserStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *FileUserStore) Create(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	user.Username = NormalizeUsername(user.Username)
	if _, taken := s.users[user.ID]; taken {
		return fmt.Errorf("%w: id %s", ErrDuplicateUser, user.ID)
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return ErrDuplicateUser
		}
	}

	s.users[user.ID] = *user
	if err := s.save(); err != nil {
		delete(s.users, user.ID)
		return err
	}
	return nil
}

func (s *FileUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}

	username = NormalizeUsername(username)
	for _, u := range s.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *FileUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *FileUserStore) Close() error {
	return nil
}

func (s *FileUserStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.users = make(map[string]User)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read user file %s: %w", s.path, err)
	}

	users := make(map[string]User)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &users); err != nil {
			return fmt.Errorf("failed to decode user file %s: %w", s.path, err)
		}
	}
	s.users = users
	return nil
}

// save writes to a temp file in the same directory and renames it over
// the target, so readers never observe a partially written document.
func (s *FileUserStore) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp user file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp user file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp user file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp user file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp user file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace user file: %w", err)
	}
	return nil
}
