// Package store persists user profiles for the REST surface. The relay
// itself writes nothing here; forwarding is purely transient.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
)

// User mirrors the users table of the reference schema. Password is never
// serialized.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Password    string     `json:"-"`
	DisplayName string     `json:"displayName,omitempty"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	About       string     `json:"about,omitempty"`
	Status      string     `json:"status"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// UserStore is the storage interface consumed by the REST handlers.
type UserStore interface {
	User(ctx context.Context, id int64) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	Users(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u *User) (*User, error)
	UpdateUser(ctx context.Context, id int64, u *User) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
	Close() error
}
