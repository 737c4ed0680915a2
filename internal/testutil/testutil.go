// Package testutil holds in-memory repository fakes and fixtures shared by
// handler tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lendinglib/internal/session"
	"lendinglib/internal/user"
)

// TestUser is a signed-in account for tests.
var TestUser = user.User{
	ID:        "test-user-id-123",
	Name:      "Terry Gilliam",
	Email:     "terry@example.com",
	CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

// SessionRepo is an in-memory session.Repository.
type SessionRepo struct {
	mu      sync.Mutex
	byID    map[string]session.Session
	nextID  int
	SaveErr error
	Saved   int
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{byID: map[string]session.Session{}}
}

func (r *SessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = fmt.Sprintf("sess-%d", r.nextID)
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.byID[s.ID] = *s
	return nil
}

func (r *SessionRepo) GetByID(_ context.Context, id string) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (r *SessionRepo) Save(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if _, ok := r.byID[s.ID]; !ok {
		return session.ErrNotFound
	}
	r.Saved++
	r.byID[s.ID] = *s
	return nil
}

func (r *SessionRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// Stored returns a copy of a stored session for assertions.
func (r *SessionRepo) Stored(id string) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// UserRepo is an in-memory user.Repository.
type UserRepo struct {
	mu      sync.Mutex
	byEmail map[string]user.User
	nextID  int
	Created []user.User
}

func NewUserRepo(existing ...user.User) *UserRepo {
	r := &UserRepo{byEmail: map[string]user.User{}}
	for _, u := range existing {
		r.byEmail[u.Email] = u
	}
	return r
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UserRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = fmt.Sprintf("user-%d", r.nextID)
	u.CreatedAt = time.Now()
	r.byEmail[u.Email] = *u
	r.Created = append(r.Created, *u)
	return nil
}
