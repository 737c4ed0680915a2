package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendinglib/internal/book"
	"lendinglib/internal/category"
	"lendinglib/internal/media"
	"lendinglib/internal/session"
	"lendinglib/internal/testutil"
)

type fakeCategoryRepo struct {
	cats []category.Category
}

func (f *fakeCategoryRepo) List(ctx context.Context) ([]category.Category, error) {
	return f.cats, nil
}

func (f *fakeCategoryRepo) GetByName(ctx context.Context, name string) (category.Category, error) {
	for _, c := range f.cats {
		if c.Name == name {
			return c, nil
		}
	}
	return category.Category{}, category.ErrNotFound
}

type webFixture struct {
	handler  *BookHandler
	repo     *book.MockRepository
	sessions *testutil.SessionRepo
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockRepo := book.NewMockRepository(ctrl)
	sessionRepo := testutil.NewSessionRepo()
	sessions := session.NewService(sessionRepo, session.NewCodec("test-secret"), false)

	renderer, err := NewRenderer(sessions)
	require.NoError(t, err)

	handler := NewBookHandler(
		book.NewService(mockRepo),
		&fakeCategoryRepo{cats: []category.Category{{ID: "c1", Name: "Mystery", BookCount: 1}}},
		sessions,
		renderer,
		media.NewStore(t.TempDir()),
		"http://app.example",
	)
	return &webFixture{handler: handler, repo: mockRepo, sessions: sessionRepo}
}

func (f *webFixture) request(t *testing.T, method, target string, sess *session.Session) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	if sess != nil {
		require.NoError(t, f.sessions.Create(context.Background(), sess))
		r = r.WithContext(session.NewContext(r.Context(), sess))
	}
	return r
}

func fixtureBook() book.Book {
	year := 1868
	return book.Book{
		ID:            "b-1",
		Title:         "The Moonstone",
		Author:        "Wilkie Collins",
		YearPublished: &year,
		LenderID:      "lender-1",
		LenderEmail:   "lender@example.com",
		CreatedAt:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestBookHandler_API(t *testing.T) {
	t.Run("default feed is recent books as JSON", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().List(gomock.Any(), book.FilterRecent{}).Return([]book.Book{fixtureBook()}, nil)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/API/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), `{"Books":[`))
		assert.Contains(t, w.Body.String(), `"title":"The Moonstone"`)
	})

	t.Run("format segment selects the serializer", func(t *testing.T) {
		f := newWebFixture(t)

		tests := []struct {
			path        string
			contentType string
			marker      string
		}{
			{"/books/API/all/XML/", "application/xml", "<books>"},
			{"/books/API/all/Atom/", "application/atom+xml", "<feed xmlns=\"http://www.w3.org/2005/Atom\">"},
			{"/books/API/all/RSS/", "application/rss+xml", "<rss version=\"2.0\">"},
		}
		for _, tt := range tests {
			f.repo.EXPECT().List(gomock.Any(), book.FilterAll{}).Return([]book.Book{fixtureBook()}, nil)

			w := httptest.NewRecorder()
			f.handler.dispatch(w, f.request(t, http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code, tt.path)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"), tt.path)
			assert.Contains(t, w.Body.String(), tt.marker, tt.path)
		}
	})

	t.Run("category feed resolves the name", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().
			List(gomock.Any(), book.FilterCategory{Name: "Mystery"}).
			Return([]book.Book{fixtureBook()}, nil)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/API/category/Mystery/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "The Moonstone")
	})

	t.Run("unknown category is a 404 without touching the book store", func(t *testing.T) {
		f := newWebFixture(t)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/API/category/Nope/", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"message":"Category not found"}`, w.Body.String())
	})

	t.Run("personal feeds require a sign-in", func(t *testing.T) {
		f := newWebFixture(t)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/API/mybooks/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"message":"Authentication required"}`, w.Body.String())
	})
}

func TestBookHandler_Info(t *testing.T) {
	t.Run("serves the projection under Book", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(fixtureBook(), nil)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/b-1/info/", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Book book.View `json:"Book"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "The Moonstone", resp.Book.Title)
		assert.True(t, resp.Book.IsAvailable)
		assert.Equal(t, "lender@example.com", resp.Book.Lender)
	})

	t.Run("unknown book", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "nope").Return(book.Book{}, book.ErrNotFound)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/nope/info/", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBookHandler_ListPage(t *testing.T) {
	f := newWebFixture(t)
	f.repo.EXPECT().List(gomock.Any(), book.FilterRecent{}).Return([]book.Book{fixtureBook()}, nil)

	w := httptest.NewRecorder()
	f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/", &session.Session{}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "The Moonstone")
	assert.Contains(t, w.Body.String(), "Recently Added Books")
	assert.Contains(t, w.Body.String(), "Mystery")
}

func TestBookHandler_CategoryPage(t *testing.T) {
	t.Run("lists books in the category", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().
			List(gomock.Any(), book.FilterCategory{Name: "Mystery"}).
			Return([]book.Book{fixtureBook()}, nil)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/category/Mystery/", &session.Session{}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Books in Mystery")
	})

	t.Run("unknown category redirects home", func(t *testing.T) {
		f := newWebFixture(t)

		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/category/Nope/", &session.Session{}))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/", w.Header().Get("Location"))
	})
}

func TestBookHandler_AuthGating(t *testing.T) {
	gated := []string{
		"/books/add/",
		"/books/mybooks/",
		"/books/favorites/",
		"/books/b-1/borrow/",
		"/books/b-1/return/",
		"/books/b-1/review/",
		"/books/b-1/favorite/",
		"/books/b-1/edit/",
		"/books/b-1/delete/",
	}
	for _, path := range gated {
		t.Run(path, func(t *testing.T) {
			f := newWebFixture(t)

			w := httptest.NewRecorder()
			f.handler.dispatch(w, f.request(t, http.MethodGet, path, nil))

			assert.Equal(t, http.StatusFound, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login_required/?next="),
				"got %q", w.Header().Get("Location"))
		})
	}
}

func TestBookHandler_Borrow(t *testing.T) {
	signedIn := func() *session.Session {
		return &session.Session{UserID: "u-1", Username: "Terry Gilliam"}
	}

	t.Run("borrows and points at my books", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(fixtureBook(), nil)
		f.repo.EXPECT().CreateLoan(gomock.Any(), "b-1", "u-1", gomock.Any()).Return(nil)

		sess := signedIn()
		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/b-1/borrow/", sess))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/mybooks/", w.Header().Get("Location"))

		stored, ok := f.sessions.Stored(sess.ID)
		require.True(t, ok)
		require.Len(t, stored.Flash, 1)
		assert.Contains(t, stored.Flash[0], "Please return by")
	})

	t.Run("already checked out", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(fixtureBook(), nil)
		f.repo.EXPECT().CreateLoan(gomock.Any(), "b-1", "u-1", gomock.Any()).Return(book.ErrAlreadyBorrowed)

		sess := signedIn()
		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/b-1/borrow/", sess))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/", w.Header().Get("Location"))

		stored, _ := f.sessions.Stored(sess.ID)
		assert.Equal(t, []string{"That book is already checked out."}, stored.Flash)
	})
}

func TestBookHandler_Delete(t *testing.T) {
	t.Run("non-lender is silently redirected", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(fixtureBook(), nil)

		sess := &session.Session{UserID: "intruder"}
		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/b-1/delete/", sess))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/", w.Header().Get("Location"))

		stored, _ := f.sessions.Stored(sess.ID)
		assert.Empty(t, stored.Flash)
	})

	t.Run("lender deletes", func(t *testing.T) {
		f := newWebFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "b-1").Return(fixtureBook(), nil)
		f.repo.EXPECT().Delete(gomock.Any(), "b-1").Return(nil)

		sess := &session.Session{UserID: "lender-1"}
		w := httptest.NewRecorder()
		f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/b-1/delete/", sess))

		assert.Equal(t, http.StatusFound, w.Code)

		stored, _ := f.sessions.Stored(sess.ID)
		assert.Equal(t, []string{"The book was deleted."}, stored.Flash)
	})
}

func TestBookHandler_UnknownFilterFallsBack(t *testing.T) {
	f := newWebFixture(t)
	f.repo.EXPECT().List(gomock.Any(), book.FilterRecent{}).Return(nil, nil)

	w := httptest.NewRecorder()
	f.handler.dispatch(w, f.request(t, http.MethodGet, "/books/whatever/", &session.Session{}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Recently Added Books")
}
