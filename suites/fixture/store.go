package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicateEmail is returned when a user with the same email exists
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound is returned when no user has the requested id
	ErrNotFound = errors.New("user not found")
)

const schema = `CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	age   INTEGER
)`

// Store persists users in SQLite
type Store struct {
	sqlDB *sql.DB
}

// OpenStore opens the database at path and creates the users table.
// An empty path opens a private in-memory database.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = ":memory:"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A second connection to :memory: would see an empty database
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateUser inserts the user and returns its id
func (s *Store) CreateUser(ctx context.Context, user User) (int64, error) {
	if strings.TrimSpace(user.Name) == "" {
		return 0, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(user.Email) == "" {
		return 0, fmt.Errorf("email is required")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (name, email, age) VALUES (?, ?, ?)`,
		user.Name, user.Email, user.Age,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read user id: %w", err)
	}
	return id, nil
}

// GetUser returns the user with the given id, or ErrNotFound
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, email, age FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Age)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by id
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, email, age FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Age); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
