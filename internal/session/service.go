package session

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// CookieName is the browser cookie holding the signed session id.
const CookieName = "lendinglib_session"

type contextKey struct{}

// Service loads and persists sessions around the cookie.
type Service struct {
	repo   Repository
	codec  *Codec
	secure bool
}

func NewService(repo Repository, codec *Codec, secureCookies bool) *Service {
	return &Service{repo: repo, codec: codec, secure: secureCookies}
}

// Load returns the request's session, creating a fresh row (and setting the
// cookie) when the cookie is missing, tampered with, or points at a pruned
// row.
func (s *Service) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if id, err := s.codec.Decode(cookie.Value); err == nil {
			sess, err := s.repo.GetByID(r.Context(), id)
			if err == nil {
				return &sess, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
	}

	sess := Session{}
	if err := s.repo.Create(r.Context(), &sess); err != nil {
		return nil, err
	}

	value, err := s.codec.Encode(sess.ID)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return &sess, nil
}

// Save persists session mutations.
func (s *Service) Save(ctx context.Context, sess *Session) error {
	return s.repo.Save(ctx, sess)
}

// PruneExpired removes sessions whose cookies can no longer be valid. Called
// periodically by the server.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now().Add(-TTL))
}

// Middleware loads the session and attaches it to the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Load(w, r)
		if err != nil {
			log.Printf("session load failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))
	})
}

// NewContext returns a context carrying the session.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromRequest retrieves the session attached by Middleware. It returns an
// empty throwaway session when none is attached, so handlers can read it
// unconditionally.
func FromRequest(r *http.Request) *Session {
	if sess, ok := r.Context().Value(contextKey{}).(*Session); ok {
		return sess
	}
	return &Session{}
}
