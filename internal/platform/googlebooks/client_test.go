package googlebooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FindVolume(t *testing.T) {
	t.Run("returns the first matching volume", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/volumes", r.URL.Path)
			assert.Equal(t, "intitle:Dune+inauthor:Frank Herbert", r.URL.Query().Get("q"))
			assert.Equal(t, "books", r.URL.Query().Get("printType"))
			assert.Equal(t, "lite", r.URL.Query().Get("projection"))
			assert.Equal(t, "key-1", r.URL.Query().Get("key"))

			w.Write([]byte(`{"items":[{"volumeInfo":{
				"title":"Dune",
				"description":"Spice and sandworms.",
				"publishedDate":"1965",
				"imageLinks":{"thumbnail":"http://books.example.com/dune.jpg&edge=curl"}
			}}]}`))
		}))
		defer srv.Close()

		c := NewClient("key-1", 100, 0).WithBaseURL(srv.URL)

		vol, err := c.FindVolume(context.Background(), "Dune", "Frank Herbert")

		require.NoError(t, err)
		require.NotNil(t, vol)
		assert.Equal(t, "Dune", vol.Title)
		assert.Equal(t, "1965", vol.PublishedDate)
		assert.Equal(t, "http://books.example.com/dune.jpg&edge=curl", vol.ImageLinks.Thumbnail)
	})

	t.Run("no match returns nil without error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := NewClient("", 100, 0).WithBaseURL(srv.URL)

		vol, err := c.FindVolume(context.Background(), "Nope", "Nobody")

		require.NoError(t, err)
		assert.Nil(t, vol)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"items":[{"volumeInfo":{"title":"Dune"}}]}`))
		}))
		defer srv.Close()

		c := NewClient("", 100, 2).WithBaseURL(srv.URL)

		vol, err := c.FindVolume(context.Background(), "Dune", "Frank Herbert")

		require.NoError(t, err)
		require.NotNil(t, vol)
		assert.Equal(t, 2, calls)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		c := NewClient("bad-key", 100, 3).WithBaseURL(srv.URL)

		_, err := c.FindVolume(context.Background(), "Dune", "Frank Herbert")

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
