package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	password TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	about TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'offline',
	last_seen INTEGER,
	created_at INTEGER NOT NULL
);
`

// SQLiteStore is the durable UserStore backed by an embedded SQLite
// database.
type SQLiteStore struct {
	conn *sql.DB
}

var _ UserStore = (*SQLiteStore)(nil)

// OpenSQLite opens (and if needed initializes) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows concurrent readers alongside the single writer; the busy
	// timeout makes SQLite wait instead of failing with SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

const userColumns = "id, username, email, password, display_name, photo_url, about, status, last_seen, created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var lastSeen sql.NullInt64
	var createdAt int64

	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.DisplayName,
		&u.PhotoURL, &u.About, &u.Status, &lastSeen, &createdAt)
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		t := time.UnixMilli(lastSeen.Int64).UTC()
		u.LastSeen = &t
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

func (s *SQLiteStore) User(ctx context.Context, id int64) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *SQLiteStore) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *SQLiteStore) Users(ctx context.Context) ([]User, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	status := u.Status
	if status == "" {
		status = "offline"
	}
	createdAt := time.Now().UTC()

	var lastSeen any
	if u.LastSeen != nil {
		lastSeen = u.LastSeen.UnixMilli()
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password, display_name, photo_url, about, status, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.Password, u.DisplayName, u.PhotoURL, u.About,
		status, lastSeen, createdAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	created := *u
	created.ID = id
	created.Status = status
	created.CreatedAt = createdAt
	return &created, nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, id int64, u *User) (*User, error) {
	var lastSeen any
	if u.LastSeen != nil {
		lastSeen = u.LastSeen.UnixMilli()
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password = ?, display_name = ?, photo_url = ?, about = ?, status = ?, last_seen = ?
		 WHERE id = ?`,
		u.Username, u.Email, u.Password, u.DisplayName, u.PhotoURL, u.About, u.Status, lastSeen, id)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrUserNotFound
	}

	return s.User(ctx, id)
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
