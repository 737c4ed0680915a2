package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"lendinglib/internal/session"
	"lendinglib/internal/user"
)

// ErrAlreadyConnected short-circuits a repeat sign-in with the identity the
// session already holds. Informational, not a failure.
var ErrAlreadyConnected = &FlowError{Status: http.StatusOK, Message: "Current user is already connected"}

// Service runs the provider-independent half of the sign-in flow. It mutates
// the session in place; callers persist it once per request.
type Service struct {
	users     user.Repository
	providers map[string]Provider
}

func NewService(users user.Repository, providers ...Provider) *Service {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{users: users, providers: m}
}

// Provider looks up a configured provider by name.
func (s *Service) Provider(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// CompleteLogin validates exchanged credentials, fetches the profile,
// resolves (or creates) the local user and stores the identity in the
// session. It returns the display name to greet.
func (s *Service) CompleteLogin(ctx context.Context, sess *session.Session, p Provider, creds Credentials) (string, error) {
	if err := p.ValidateToken(ctx, creds); err != nil {
		return "", err
	}

	// A repeat sign-in by the same subject is a no-op.
	if creds.SubjectID != "" && sess.Credentials != "" &&
		sess.Provider == p.Name() && sess.SubjectID == creds.SubjectID {
		return "", ErrAlreadyConnected
	}

	profile, err := p.FetchProfile(ctx, creds)
	if err != nil {
		return "", err
	}
	if creds.SubjectID == "" {
		creds.SubjectID = profile.ID
	}
	if profile.Email == "" {
		profile.Email = creds.Email
	}
	if profile.Email == "" {
		// Some provider configurations withhold the email. Synthesize a
		// stable address so the account can still be resolved next login.
		profile.Email = fmt.Sprintf("%s@%s.invalid", profile.ID, p.Name())
	}

	u, err := s.users.GetByEmail(ctx, profile.Email)
	if errors.Is(err, user.ErrNotFound) {
		u = user.User{Name: profile.Name, Email: profile.Email, Picture: profile.Picture}
		err = s.users.Create(ctx, &u)
	}
	if err != nil {
		return "", err
	}

	rawCreds, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	sess.Provider = p.Name()
	sess.SubjectID = creds.SubjectID
	sess.Credentials = string(rawCreds)
	sess.Username = profile.Name
	sess.Email = profile.Email
	sess.Picture = profile.Picture
	sess.UserID = u.ID
	return u.DisplayName(), nil
}

// Logout revokes the provider grant where the provider supports it and
// clears the session identity. It reports whether anyone was signed in.
func (s *Service) Logout(ctx context.Context, sess *session.Session) bool {
	if sess.Provider == "" {
		return false
	}

	if p, ok := s.providers[sess.Provider]; ok && sess.Credentials != "" {
		var creds Credentials
		if err := json.Unmarshal([]byte(sess.Credentials), &creds); err == nil {
			if err := p.Revoke(ctx, creds); err != nil {
				log.Printf("msg=\"token revoke failed\" provider=%s error=%q", sess.Provider, err)
			}
		}
	}

	sess.ClearIdentity()
	return true
}
