package book

import (
	"context"
	"time"
)

// Repository defines the contract for book data storage. Loan, rating and
// favorite rows live with the book they belong to.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Book, error)
	GetByID(ctx context.Context, id string) (Book, error)
	Search(ctx context.Context, term string) ([]Book, error)
	ListBorrowedBy(ctx context.Context, userID string) ([]Book, error)
	Create(ctx context.Context, b *Book, categoryIDs []string) error
	Update(ctx context.Context, b *Book, categoryIDs []string) error
	Delete(ctx context.Context, id string) error
	CreateLoan(ctx context.Context, bookID, userID string, dueDate time.Time) error
	CloseLoan(ctx context.Context, bookID, userID string) error
	CreateRating(ctx context.Context, rating Rating) error
	HasRating(ctx context.Context, userID, bookID string) (bool, error)
	AddFavorite(ctx context.Context, bookID, userID string) error
}
