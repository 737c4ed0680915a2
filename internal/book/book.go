package book

import (
	"errors"
	"math"
	"strings"
	"time"

	"lendinglib/internal/category"
)

var (
	// ErrNotFound is returned when a book (or a category filtered on) is not found.
	ErrNotFound = errors.New("book not found")
	// ErrForbidden is returned when a user acts on a book they do not lend.
	ErrForbidden = errors.New("not the lender of this book")
	// ErrAlreadyBorrowed is returned when a borrow request races or repeats
	// while an open loan exists for the book.
	ErrAlreadyBorrowed = errors.New("book already has an open loan")
	// ErrNoOpenLoan is returned when returning a book the user has not borrowed.
	ErrNoOpenLoan = errors.New("no open loan for this user and book")
	// ErrAlreadyRated is returned when a user rates the same book twice.
	ErrAlreadyRated = errors.New("book already rated by this user")
)

// DueDateFormat is how due dates are presented throughout the app.
const DueDateFormat = "01/02/2006"

// Borrower identifies who currently holds a book.
type Borrower struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Loan is one borrow event. DueDate is the borrow date plus 30 days. As long
// as Returned is false the book is unavailable to everyone else.
type Loan struct {
	ID        string
	BookID    string
	UserID    string
	DueDate   time.Time
	Returned  bool
	Borrower  Borrower
	CreatedAt time.Time
}

// Rating is one user's rating of one book, with an optional text review.
// There is at most one per (user, book) pair and it is immutable once written.
type Rating struct {
	UserID    string
	BookID    string
	Rating    float64
	Review    string
	RaterName string
}

// Book is a catalog entry together with its loaded relations.
type Book struct {
	ID            string
	Title         string
	Author        string
	YearPublished *int
	Synopsis      string
	Picture       string
	LenderID      string
	LenderName    string
	LenderEmail   string
	CreatedAt     time.Time
	Categories    []category.Category
	Loans         []Loan
	Ratings       []Rating
}

// Availability is the derived loan status of a book.
type Availability struct {
	Available bool
	DueDate   *string // formatted MM/DD/YYYY when unavailable
	Borrower  *Borrower
}

// ComputeAvailability scans a book's full loan history. Any loan with
// Returned == false makes the book unavailable and reports its due date and
// borrower. Multiple open loans are a data inconsistency the write path
// prevents; if one slips through anyway, the last loan scanned wins.
func ComputeAvailability(loans []Loan) Availability {
	out := Availability{Available: true}
	for _, l := range loans {
		if l.Returned {
			continue
		}
		due := l.DueDate.Format(DueDateFormat)
		b := l.Borrower
		out = Availability{Available: false, DueDate: &due, Borrower: &b}
	}
	return out
}

// AverageRating returns the mean of all ratings rounded half-up to two
// decimal places, or 0 when the book has no ratings.
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += r.Rating
	}
	return math.Round(sum/float64(len(ratings))*100) / 100
}

// View is the projection of a Book consumed by the JSON info endpoint and the
// feed serializers. Fields are declared in the order they serialize.
type View struct {
	Author        string    `json:"author"`
	Borrower      *Borrower `json:"borrower"`
	DateAdded     time.Time `json:"date_added"`
	DueDate       *string   `json:"due_date"`
	ID            string    `json:"id"`
	IsAvailable   bool      `json:"is_available"`
	Lender        string    `json:"lender"`
	Picture       string    `json:"picture"`
	Synopsis      string    `json:"synopsis"`
	Title         string    `json:"title"`
	YearPublished *int      `json:"year_published"`
}

// View builds the serializable projection of b. Uploaded cover art is turned
// into an absolute /media/ URL; pictures sourced from the Google Books API are
// already absolute and pass through untouched.
func (b Book) View(baseURL string) View {
	avail := ComputeAvailability(b.Loans)

	pic := b.Picture
	if pic != "" && !strings.Contains(pic, "http") {
		pic = strings.TrimRight(baseURL, "/") + "/media/" + pic
	}

	return View{
		Author:        b.Author,
		Borrower:      avail.Borrower,
		DateAdded:     b.CreatedAt,
		DueDate:       avail.DueDate,
		ID:            b.ID,
		IsAvailable:   avail.Available,
		Lender:        b.LenderEmail,
		Picture:       pic,
		Synopsis:      b.Synopsis,
		Title:         b.Title,
		YearPublished: b.YearPublished,
	}
}

// Views projects a slice of books.
func Views(books []Book, baseURL string) []View {
	out := make([]View, 0, len(books))
	for _, b := range books {
		out = append(out, b.View(baseURL))
	}
	return out
}
