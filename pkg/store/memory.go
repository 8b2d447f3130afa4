package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory UserStore for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[int64]User
	nextID int64
}

var _ UserStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]User),
		nextID: 1,
	}
}

func (s *MemoryStore) User(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, has := s.users[id]
	if !has {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) Users(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return nil, ErrUsernameTaken
		}
	}

	created := *u
	created.ID = s.nextID
	s.nextID++
	if created.Status == "" {
		created.Status = "offline"
	}
	created.CreatedAt = time.Now().UTC()

	s.users[created.ID] = created
	return &created, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int64, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, has := s.users[id]
	if !has {
		return nil, ErrUserNotFound
	}

	for otherID, other := range s.users {
		if otherID != id && other.Username == u.Username {
			return nil, ErrUsernameTaken
		}
	}

	updated := *u
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	s.users[id] = updated
	return &updated, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
