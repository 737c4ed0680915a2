package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAvailability(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("no loans", func(t *testing.T) {
		avail := ComputeAvailability(nil)

		assert.True(t, avail.Available)
		assert.Nil(t, avail.DueDate)
		assert.Nil(t, avail.Borrower)
	})

	t.Run("all loans returned", func(t *testing.T) {
		avail := ComputeAvailability([]Loan{
			{DueDate: due, Returned: true},
			{DueDate: due.AddDate(0, 1, 0), Returned: true},
		})

		assert.True(t, avail.Available)
	})

	t.Run("open loan reports due date and borrower", func(t *testing.T) {
		avail := ComputeAvailability([]Loan{
			{DueDate: due, Returned: true},
			{DueDate: due, Returned: false, Borrower: Borrower{Name: "Ada", Email: "ada@example.com"}},
		})

		assert.False(t, avail.Available)
		require.NotNil(t, avail.DueDate)
		assert.Equal(t, "03/15/2026", *avail.DueDate)
		require.NotNil(t, avail.Borrower)
		assert.Equal(t, "ada@example.com", avail.Borrower.Email)
	})

	t.Run("last open loan wins", func(t *testing.T) {
		later := due.AddDate(0, 2, 0)
		avail := ComputeAvailability([]Loan{
			{DueDate: due, Returned: false, Borrower: Borrower{Email: "first@example.com"}},
			{DueDate: later, Returned: false, Borrower: Borrower{Email: "second@example.com"}},
		})

		assert.False(t, avail.Available)
		assert.Equal(t, "05/15/2026", *avail.DueDate)
		assert.Equal(t, "second@example.com", avail.Borrower.Email)
	})
}

func TestAverageRating(t *testing.T) {
	t.Run("no ratings", func(t *testing.T) {
		assert.Equal(t, 0.0, AverageRating(nil))
	})

	t.Run("single rating", func(t *testing.T) {
		assert.Equal(t, 4.5, AverageRating([]Rating{{Rating: 4.5}}))
	})

	t.Run("rounds to two decimals", func(t *testing.T) {
		got := AverageRating([]Rating{{Rating: 1}, {Rating: 2}, {Rating: 2}})
		assert.Equal(t, 1.67, got)

		got = AverageRating([]Rating{{Rating: 3.2}, {Rating: 2.1}})
		assert.Equal(t, 2.65, got)
	})

	t.Run("half rounds up", func(t *testing.T) {
		// 4.125 averages to 4.125; half-up rounding gives 4.13.
		got := AverageRating([]Rating{{Rating: 4.25}, {Rating: 4.0}})
		assert.Equal(t, 4.13, got)
	})
}

func TestBookView(t *testing.T) {
	added := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	year := 1978

	base := Book{
		ID:            "b1",
		Title:         "The Hitchhiker's Guide",
		Author:        "Douglas Adams",
		YearPublished: &year,
		Synopsis:      "Don't panic.",
		LenderID:      "u1",
		LenderEmail:   "lender@example.com",
		CreatedAt:     added,
	}

	t.Run("uploaded picture becomes absolute media URL", func(t *testing.T) {
		b := base
		b.Picture = "1750000000_cover.jpg"

		v := b.View("http://localhost:8080/")

		assert.Equal(t, "http://localhost:8080/media/1750000000_cover.jpg", v.Picture)
	})

	t.Run("external picture passes through", func(t *testing.T) {
		b := base
		b.Picture = "https://books.example.com/cover.jpg"

		v := b.View("http://localhost:8080")

		assert.Equal(t, "https://books.example.com/cover.jpg", v.Picture)
	})

	t.Run("projects availability", func(t *testing.T) {
		b := base
		b.Loans = []Loan{{
			DueDate:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Returned: false,
			Borrower: Borrower{Name: "Ada", Email: "ada@example.com"},
		}}

		v := b.View("")

		assert.False(t, v.IsAvailable)
		require.NotNil(t, v.DueDate)
		assert.Equal(t, "04/01/2026", *v.DueDate)
		require.NotNil(t, v.Borrower)
		assert.Equal(t, "Ada", v.Borrower.Name)
		assert.Equal(t, "lender@example.com", v.Lender)
		assert.Equal(t, added, v.DateAdded)
	})
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		key  string
		want Filter
	}{
		{"recent", FilterRecent{}},
		{"all", FilterAll{}},
		{"mybooks", FilterMine{UserID: "u1"}},
		{"favorites", FilterFavorites{UserID: "u1"}},
		{"category", FilterCategory{Name: "Mystery"}},
		{"bogus", FilterRecent{}},
		{"", FilterRecent{}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilter(tt.key, "Mystery", "u1"))
		})
	}
}
