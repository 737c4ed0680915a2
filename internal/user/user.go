package user

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is an account created on first sign-in through an identity provider.
// Identity is keyed by email across providers.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the user's name if available, otherwise the email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Repository defines the contract for user data storage. Accounts are keyed
// by email; nothing looks users up any other way.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u *User) error
}
