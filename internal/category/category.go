package category

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no category exists with the requested name.
var ErrNotFound = errors.New("category not found")

// Category is a genre a book can belong to. BookCount is derived from the
// book/category join table, not stored.
type Category struct {
	ID        string
	Name      string
	BookCount int
}

// Repository defines the contract for category data storage.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	GetByName(ctx context.Context, name string) (Category, error)
}
