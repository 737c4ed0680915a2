package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session row is gone (expired or pruned).
var ErrNotFound = errors.New("session not found")

// TTL bounds a session's life: the cookie, its signature and the pruner all
// use the same horizon.
const TTL = 30 * 24 * time.Hour

// Session is one browser's durable state: the OAuth state token, the signed-in
// identity (if any) and pending flash messages. The cookie carries only the
// row id.
type Session struct {
	ID          string
	State       string
	Provider    string
	SubjectID   string
	Credentials string // provider credentials, JSON-encoded
	Username    string
	Email       string
	Picture     string
	UserID      string
	NextURL     string
	Flash       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LoggedIn reports whether the session holds a signed-in identity.
func (s *Session) LoggedIn() bool {
	return s.UserID != ""
}

// AddFlash queues a one-shot message for the next rendered page.
func (s *Session) AddFlash(msg string) {
	s.Flash = append(s.Flash, msg)
}

// PopFlash drains queued messages.
func (s *Session) PopFlash() []string {
	out := s.Flash
	s.Flash = nil
	return out
}

// ClearIdentity drops every identity field, leaving the session itself (and
// its flash queue) intact. Called unconditionally on logout.
func (s *Session) ClearIdentity() {
	s.Provider = ""
	s.SubjectID = ""
	s.Credentials = ""
	s.Username = ""
	s.Email = ""
	s.Picture = ""
	s.UserID = ""
}

// Repository defines the contract for session storage.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s *Session) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
