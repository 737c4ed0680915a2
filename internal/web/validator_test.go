package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	t.Run("valid book form", func(t *testing.T) {
		errs := ValidateStruct(bookForm{
			Title:         "The Moonstone",
			Author:        "Wilkie Collins",
			YearPublished: 1868,
		})
		assert.Nil(t, errs)
	})

	t.Run("missing required fields", func(t *testing.T) {
		errs := ValidateStruct(bookForm{})
		require.Len(t, errs, 2)
		assert.Equal(t, ValidationError{Field: "title", Message: "Title is required"}, errs[0])
		assert.Equal(t, ValidationError{Field: "author", Message: "Author is required"}, errs[1])
	})

	t.Run("publication year bounds", func(t *testing.T) {
		errs := ValidateStruct(bookForm{Title: "T", Author: "A", YearPublished: time.Now().Year() + 1})
		require.Len(t, errs, 1)
		assert.Equal(t, "yearPublished", errs[0].Field)
		assert.Equal(t, "YearPublished must be between 1 and the current year", errs[0].Message)

		errs = ValidateStruct(bookForm{Title: "T", Author: "A", YearPublished: -5})
		require.Len(t, errs, 1)
		assert.Equal(t, "yearPublished", errs[0].Field)

		// omitempty lets a blank field through
		assert.Nil(t, ValidateStruct(bookForm{Title: "T", Author: "A"}))
	})

	t.Run("rating range", func(t *testing.T) {
		errs := ValidateStruct(reviewForm{Rating: 5.5})
		require.Len(t, errs, 1)
		assert.Equal(t, ValidationError{Field: "rating", Message: "Rating must be at most 5"}, errs[0])

		assert.Nil(t, ValidateStruct(reviewForm{Rating: 0}))
		assert.Nil(t, ValidateStruct(reviewForm{Rating: 5}))
	})
}

func TestFieldErrors(t *testing.T) {
	out := fieldErrors([]ValidationError{
		{Field: "title", Message: "first"},
		{Field: "title", Message: "second"},
		{Field: "author", Message: "Author is required"},
	})

	assert.Equal(t, map[string]string{
		"title":  "first",
		"author": "Author is required",
	}, out)

	assert.Nil(t, fieldErrors(nil))
}
