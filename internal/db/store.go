// Package db is the persistence gateway: users, backup records and snapshot
// file tables in a single-file sqlite store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL,
    token TEXT,
    token_expire TIMESTAMP,
    last_login TIMESTAMP,
    last_address TEXT,
    permission INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS backups (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    created TIMESTAMP NOT NULL,
    previous_backup TEXT,
    path TEXT NOT NULL,
    comments TEXT,
    total_files INTEGER NOT NULL DEFAULT 0,
    total_files_size INTEGER NOT NULL DEFAULT 0,
    error_files INTEGER NOT NULL DEFAULT 0,
    final_size INTEGER
);
CREATE INDEX IF NOT EXISTS idx_backups_source ON backups(source, created);

CREATE TABLE IF NOT EXISTS snapshot_files (
    backup_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL,
    size INTEGER,
    status TEXT NOT NULL,
    modified TIMESTAMP,
    hash_md5 TEXT,
    PRIMARY KEY (backup_id, path)
);

CREATE TABLE IF NOT EXISTS snapshot_error_files (
    backup_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT,
    error_type TEXT NOT NULL,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_snapshot_errors_backup ON snapshot_error_files(backup_id);
`

// Store provides data access to the daemon's sqlite database.
//
// Grouped writes (backup row + snapshot rows) take commitMu so concurrent
// tasks cannot interleave their transactions.
type Store struct {
	db       *sql.DB
	commitMu sync.Mutex
}

// Open opens (or creates) the database file and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// --- Users ---

func scanUser(row interface{ Scan(...any) error }) (*types.User, error) {
	u := &types.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Password, &u.Token, &u.TokenExpire,
		&u.LastLogin, &u.LastAddress, &u.Permission)
	return u, err
}

const userColumns = `id, name, password, token, token_expire, last_login, COALESCE(last_address, ''), permission`

// CreateUser inserts a user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, name, passwordHash string, permission int) (*types.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, password, permission) VALUES (?, ?, ?)`,
		name, passwordHash, permission)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUser(ctx, id)
}

// GetUser looks a user up by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrUserNotFound
	}
	return u, err
}

// GetUserByName looks a user up by name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrUserNotFound
	}
	return u, err
}

// GetUserByToken resolves a session token, rejecting expired sessions.
func (s *Store) GetUserByToken(ctx context.Context, token string, now time.Time) (*types.User, error) {
	if token == "" {
		return nil, errs.ErrInvalidCredentials
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.TokenExpire == nil || !u.TokenExpire.After(now) {
		return nil, errs.ErrInvalidCredentials
	}
	return u, nil
}

// UpdateSession rotates the session token and records the login.
func (s *Store) UpdateSession(ctx context.Context, userID int64, token string, expire, lastLogin time.Time, address string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET token = ?, token_expire = ?, last_login = ?, last_address = ? WHERE id = ?`,
		token, expire.UTC(), lastLogin.UTC(), address, userID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// SetTokenExpire overrides a user's session expiry (admin/testing surface).
func (s *Store) SetTokenExpire(ctx context.Context, userID int64, expire time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET token_expire = ? WHERE id = ?`, expire.UTC(), userID)
	return err
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RemoveUser deletes a user by name.
func (s *Store) RemoveUser(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}
