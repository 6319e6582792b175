package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(dataSourceName string) (*SQLiteUserStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// One writer at a time; sqlite3 serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteUserStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteUserStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteUserStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteUserStore) Create(ctx context.Context, user *User) error {
	user.Username = NormalizeUsername(user.Username)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, first_name, last_name, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.FirstName, user.LastName, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SQLiteUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, first_name, last_name, created_at FROM users WHERE username = ?", NormalizeUsername(username))
}

func (s *SQLiteUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "SELECT id, username, password_hash, first_name, last_name, created_at FROM users WHERE id = ?", id)
}

func (s *SQLiteUserStore) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.FirstName, &user.LastName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}
