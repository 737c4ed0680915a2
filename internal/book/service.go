package book

import (
	"context"
	"strconv"
	"strings"
	"time"

	"lendinglib/internal/platform/googlebooks"
)

// LoanPeriod is how long a borrowed book stays out.
const LoanPeriod = 30 * 24 * time.Hour

// VolumeFinder looks up a published volume by title and author. Satisfied by
// the Google Books client.
type VolumeFinder interface {
	FindVolume(ctx context.Context, title, author string) (*googlebooks.Volume, error)
}

// Service provides catalog business logic on top of the repository.
type Service struct {
	repo    Repository
	volumes VolumeFinder // nil when the Google Books integration is disabled
	now     func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithVolumeFinder enables form-field backfill from the Google Books API.
func (s *Service) WithVolumeFinder(v VolumeFinder) *Service {
	s.volumes = v
	return s
}

// WithClock overrides the service clock. Tests use this to pin due dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) List(ctx context.Context, f Filter) ([]Book, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (Book, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, term string) ([]Book, error) {
	return s.repo.Search(ctx, term)
}

func (s *Service) ListBorrowedBy(ctx context.Context, userID string) ([]Book, error) {
	return s.repo.ListBorrowedBy(ctx, userID)
}

// AddInput carries the validated add/edit form.
type AddInput struct {
	Title         string
	Author        string
	YearPublished *int
	Synopsis      string
	Picture       string
	CategoryIDs   []string
}

// Add creates a book lent by lenderID. When the Google Books integration is
// enabled, blank synopsis, year and picture fields are backfilled from the
// first matching volume; lookup failures are not fatal to the add.
func (s *Service) Add(ctx context.Context, lenderID string, in AddInput) (Book, error) {
	if s.volumes != nil && (in.Picture == "" || in.Synopsis == "" || in.YearPublished == nil) {
		if vol, err := s.volumes.FindVolume(ctx, in.Title, in.Author); err == nil && vol != nil {
			if in.Picture == "" && vol.ImageLinks.Thumbnail != "" {
				in.Picture = strings.ReplaceAll(vol.ImageLinks.Thumbnail, "&edge=curl", "")
			}
			if in.Synopsis == "" {
				in.Synopsis = vol.Description
			}
			if in.YearPublished == nil {
				if year, ok := parseYear(vol.PublishedDate); ok {
					in.YearPublished = &year
				}
			}
		}
	}

	b := Book{
		Title:         in.Title,
		Author:        in.Author,
		YearPublished: in.YearPublished,
		Synopsis:      in.Synopsis,
		Picture:       in.Picture,
		LenderID:      lenderID,
	}
	if err := s.repo.Create(ctx, &b, in.CategoryIDs); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Edit updates a book. Only the lender may edit; anyone else gets
// ErrForbidden. An empty Picture keeps the existing cover.
func (s *Service) Edit(ctx context.Context, id, editorID string, in AddInput) (Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if b.LenderID != editorID {
		return Book{}, ErrForbidden
	}

	b.Title = in.Title
	b.Author = in.Author
	b.YearPublished = in.YearPublished
	b.Synopsis = in.Synopsis
	if in.Picture != "" {
		b.Picture = in.Picture
	}
	if err := s.repo.Update(ctx, &b, in.CategoryIDs); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Delete removes a book from the catalog. Only the lender may delete.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if b.LenderID != userID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// Borrow opens a 30-day loan on the book and returns its due date.
func (s *Service) Borrow(ctx context.Context, bookID, userID string) (time.Time, error) {
	b, err := s.repo.GetByID(ctx, bookID)
	if err != nil {
		return time.Time{}, err
	}
	dueDate := s.now().Add(LoanPeriod)
	if err := s.repo.CreateLoan(ctx, b.ID, userID, dueDate); err != nil {
		return time.Time{}, err
	}
	return dueDate, nil
}

// Return closes the user's open loan on the book.
func (s *Service) Return(ctx context.Context, bookID, userID string) error {
	if _, err := s.repo.GetByID(ctx, bookID); err != nil {
		return err
	}
	return s.repo.CloseLoan(ctx, bookID, userID)
}

// Review records a rating (0.0-5.0) and optional review text, once per user
// and book.
func (s *Service) Review(ctx context.Context, bookID, userID string, rating float64, review string) error {
	rated, err := s.repo.HasRating(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if rated {
		return ErrAlreadyRated
	}
	return s.repo.CreateRating(ctx, Rating{
		UserID: userID,
		BookID: bookID,
		Rating: rating,
		Review: review,
	})
}

func (s *Service) HasReviewed(ctx context.Context, userID, bookID string) (bool, error) {
	return s.repo.HasRating(ctx, userID, bookID)
}

// Favorite marks the book as a favorite of the user. Repeats are no-ops.
func (s *Service) Favorite(ctx context.Context, bookID, userID string) error {
	if _, err := s.repo.GetByID(ctx, bookID); err != nil {
		return err
	}
	return s.repo.AddFavorite(ctx, bookID, userID)
}

// parseYear extracts a publication year from the API's publishedDate, which
// is usually a bare 4-digit year but sometimes a full date.
func parseYear(published string) (int, bool) {
	if published == "" {
		return 0, false
	}
	if year, err := strconv.Atoi(published); err == nil {
		return year, true
	}
	if t, err := time.Parse("2006-01-02", published); err == nil {
		return t.Year(), true
	}
	return 0, false
}
