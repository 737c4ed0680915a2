package auth

import (
	"context"
	"crypto/rand"
)

// Credentials is what a provider hands back after a successful code or token
// exchange. SubjectID and Email are filled when the provider's exchange
// already carries them (Google's id_token does, Facebook's does not).
type Credentials struct {
	AccessToken string `json:"access_token"`
	SubjectID   string `json:"subject_id,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Profile is the provider's view of the signed-in person.
type Profile struct {
	ID      string
	Name    string
	Email   string
	Picture string
}

// FlowError is a sign-in failure carrying the message and status the client
// should see.
type FlowError struct {
	Status  int
	Message string
}

func (e *FlowError) Error() string {
	return e.Message
}

// Provider abstracts one OAuth identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (Credentials, error)
	ValidateToken(ctx context.Context, creds Credentials) error
	FetchProfile(ctx context.Context, creds Credentials) (Profile, error)
	Revoke(ctx context.Context, creds Credentials) error
}

const (
	stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	stateLength   = 32
)

// NewStateToken returns a 32-character anti-forgery token drawn from
// uppercase letters and digits.
func NewStateToken() (string, error) {
	buf := make([]byte, stateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = stateAlphabet[int(b)%len(stateAlphabet)]
	}
	return string(buf), nil
}
