package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"lendinglib/internal/auth"
	"lendinglib/internal/book"
	"lendinglib/internal/category"
	"lendinglib/internal/feed"
	"lendinglib/internal/httpx"
	"lendinglib/internal/media"
	"lendinglib/internal/session"
)

const maxUploadBytes = 10 << 20

// BookHandler serves every page and API route under /books/. The subtree
// mixes positional segments ({filter}/, {id}/{action}/, API/...) that overlap
// as ServeMux patterns, so dispatch is done by hand on the path segments.
type BookHandler struct {
	svc        *book.Service
	categories category.Repository
	sessions   *session.Service
	render     *Renderer
	media      *media.Store
	baseURL    string
}

func NewBookHandler(svc *book.Service, categories category.Repository, sessions *session.Service, render *Renderer, mediaStore *media.Store, baseURL string) *BookHandler {
	return &BookHandler{
		svc:        svc,
		categories: categories,
		sessions:   sessions,
		render:     render,
		media:      mediaStore,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (h *BookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/books/", h.dispatch)
}

func (h *BookHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/books"), "/")
	if rest == "" {
		h.list(w, r, "recent", "")
		return
	}
	parts := strings.Split(rest, "/")

	switch parts[0] {
	case "API":
		h.api(w, r, parts[1:])
		return
	case "search":
		if len(parts) == 1 {
			h.search(w, r)
			return
		}
	case "add":
		if len(parts) == 1 {
			h.requireUser(w, r, h.add)
			return
		}
	case "category":
		if len(parts) == 2 {
			h.list(w, r, "category", parts[1])
			return
		}
	case "mybooks", "favorites":
		if len(parts) == 1 {
			key := parts[0]
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, _ string) {
				h.list(w, r, key, "")
			})
			return
		}
	}

	if len(parts) == 2 {
		id, action := parts[0], parts[1]
		switch action {
		case "info":
			h.info(w, r, id)
			return
		case "edit":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.edit(w, r, id, userID)
			})
			return
		case "borrow":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.borrow(w, r, id, userID)
			})
			return
		case "return":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.returnBook(w, r, id, userID)
			})
			return
		case "review":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.review(w, r, id, userID)
			})
			return
		case "favorite":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.favorite(w, r, id, userID)
			})
			return
		case "delete":
			h.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
				h.delete(w, r, id, userID)
			})
			return
		}
	}

	// A single unrecognized segment is treated as a filter key and falls
	// back to the recent listing.
	if len(parts) == 1 {
		h.list(w, r, parts[0], "")
		return
	}
	http.NotFound(w, r)
}

// requireUser gates an action behind auth.RequireLogin and hands the signed-in
// user id to the wrapped action.
func (h *BookHandler) requireUser(w http.ResponseWriter, r *http.Request, fn func(http.ResponseWriter, *http.Request, string)) {
	auth.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, session.FromRequest(r).UserID)
	})).ServeHTTP(w, r)
}

// bookVM is the template-facing shape of a book: the serialized projection
// plus page-only derivations.
type bookVM struct {
	book.View
	AverageRating float64
	RatingCount   int
	IsMine        bool
	Ratings       []book.Rating
	Categories    []category.Category
}

func (h *BookHandler) viewModel(b book.Book, viewerID string) bookVM {
	return bookVM{
		View:          b.View(h.baseURL),
		AverageRating: book.AverageRating(b.Ratings),
		RatingCount:   len(b.Ratings),
		IsMine:        viewerID != "" && b.LenderID == viewerID,
		Ratings:       b.Ratings,
		Categories:    b.Categories,
	}
}

func (h *BookHandler) viewModels(books []book.Book, viewerID string) []bookVM {
	out := make([]bookVM, 0, len(books))
	for _, b := range books {
		out = append(out, h.viewModel(b, viewerID))
	}
	return out
}

func headingFor(key, categoryName string) string {
	switch key {
	case "all":
		return "All Books"
	case "mybooks":
		return "My Books"
	case "favorites":
		return "My Favorites"
	case "category":
		return "Books in " + categoryName
	default:
		return "Recently Added Books"
	}
}

func (h *BookHandler) list(w http.ResponseWriter, r *http.Request, key, categoryName string) {
	sess := session.FromRequest(r)

	if key == "category" {
		c, err := h.categories.GetByName(r.Context(), categoryName)
		if err != nil {
			if errors.Is(err, category.ErrNotFound) {
				http.Redirect(w, r, "/books/", http.StatusFound)
				return
			}
			h.serverError(w, r, err)
			return
		}
		categoryName = c.Name
	}

	books, err := h.svc.List(r.Context(), book.ParseFilter(key, categoryName, sess.UserID))
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			http.Redirect(w, r, "/books/", http.StatusFound)
			return
		}
		h.serverError(w, r, err)
		return
	}

	cats, err := h.categories.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	var borrowed []book.Book
	if key == "mybooks" {
		borrowed, err = h.svc.ListBorrowedBy(r.Context(), sess.UserID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
	}

	h.render.HTML(w, r, "books", map[string]any{
		"Heading":      headingFor(key, categoryName),
		"Books":        h.viewModels(books, sess.UserID),
		"Borrowed":     h.viewModels(borrowed, sess.UserID),
		"ShowBorrowed": key == "mybooks",
		"Categories":   cats,
		"Filter":       key,
	})
}

func (h *BookHandler) search(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	query := strings.TrimSpace(r.FormValue("query"))

	var results []book.Book
	if query != "" {
		var err error
		results, err = h.svc.Search(r.Context(), query)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
	}

	h.render.HTML(w, r, "search", map[string]any{
		"Query":    query,
		"Searched": query != "",
		"Books":    h.viewModels(results, sess.UserID),
	})
}

// info serves the single-book JSON projection used by the list pages'
// detail popovers.
func (h *BookHandler) info(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			httpx.JSONMessage(w, http.StatusNotFound, "Book not found")
			return
		}
		h.serverError(w, r, err)
		return
	}

	body, err := json.Marshal(struct {
		Book book.View
	}{Book: b.View(h.baseURL)})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// bookForm carries the add/edit form fields through validation.
type bookForm struct {
	Title         string `validate:"required,max=200"`
	Author        string `validate:"required,max=200"`
	YearPublished int    `validate:"omitempty,publication_year"`
	Synopsis      string `validate:"max=5000"`
}

// parseBookForm reads the multipart add/edit form. A malformed year is
// reported as a field error rather than a validation tag.
func parseBookForm(r *http.Request) (bookForm, []string, map[string]string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		// Plain (non-multipart) posts are still acceptable.
		if err := r.ParseForm(); err != nil {
			return bookForm{}, nil, nil, err
		}
	}

	form := bookForm{
		Title:    strings.TrimSpace(r.FormValue("title")),
		Author:   strings.TrimSpace(r.FormValue("author")),
		Synopsis: strings.TrimSpace(r.FormValue("synopsis")),
	}
	errs := map[string]string{}
	if yearStr := strings.TrimSpace(r.FormValue("year_published")); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			errs["yearPublished"] = "YearPublished must be a number"
		} else {
			form.YearPublished = year
		}
	}
	for field, msg := range fieldErrors(ValidateStruct(form)) {
		if _, taken := errs[field]; !taken {
			errs[field] = msg
		}
	}
	if len(errs) == 0 {
		errs = nil
	}
	return form, r.Form["categories"], errs, nil
}

func (h *BookHandler) savedUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("picture")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()
	return h.media.Save(header.Filename, file)
}

func (h *BookHandler) add(w http.ResponseWriter, r *http.Request, userID string) {
	renderForm := func(form bookForm, selected []string, errs map[string]string) {
		cats, err := h.categories.List(r.Context())
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.render.HTML(w, r, "book_form", map[string]any{
			"Heading":    "Add a Book",
			"Action":     "/books/add/",
			"Form":       form,
			"Selected":   selectedSet(selected),
			"Errors":     errs,
			"Categories": cats,
		})
	}

	if r.Method != http.MethodPost {
		renderForm(bookForm{}, nil, nil)
		return
	}

	form, categoryIDs, errs, err := parseBookForm(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if errs != nil {
		renderForm(form, categoryIDs, errs)
		return
	}

	picture, err := h.savedUpload(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	b, err := h.svc.Add(r.Context(), userID, book.AddInput{
		Title:         form.Title,
		Author:        form.Author,
		YearPublished: yearPtr(form.YearPublished),
		Synopsis:      form.Synopsis,
		Picture:       picture,
		CategoryIDs:   categoryIDs,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.flashAndRedirect(w, r, "New book "+b.Title+" added!", "/books/")
}

func (h *BookHandler) edit(w http.ResponseWriter, r *http.Request, id, userID string) {
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.redirectOnDomainError(w, r, err)
		return
	}
	if b.LenderID != userID {
		http.Redirect(w, r, "/books/", http.StatusFound)
		return
	}

	renderForm := func(form bookForm, selected []string, errs map[string]string) {
		cats, err := h.categories.List(r.Context())
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		h.render.HTML(w, r, "book_form", map[string]any{
			"Heading":    "Edit " + b.Title,
			"Action":     "/books/" + id + "/edit/",
			"Form":       form,
			"Selected":   selectedSet(selected),
			"Errors":     errs,
			"Categories": cats,
		})
	}

	if r.Method != http.MethodPost {
		form := bookForm{Title: b.Title, Author: b.Author, Synopsis: b.Synopsis}
		if b.YearPublished != nil {
			form.YearPublished = *b.YearPublished
		}
		selected := make([]string, 0, len(b.Categories))
		for _, c := range b.Categories {
			selected = append(selected, c.ID)
		}
		renderForm(form, selected, nil)
		return
	}

	form, categoryIDs, errs, err := parseBookForm(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if errs != nil {
		renderForm(form, categoryIDs, errs)
		return
	}

	picture, err := h.savedUpload(r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	updated, err := h.svc.Edit(r.Context(), id, userID, book.AddInput{
		Title:         form.Title,
		Author:        form.Author,
		YearPublished: yearPtr(form.YearPublished),
		Synopsis:      form.Synopsis,
		Picture:       picture,
		CategoryIDs:   categoryIDs,
	})
	if err != nil {
		h.redirectOnDomainError(w, r, err)
		return
	}

	h.flashAndRedirect(w, r, "Saved changes to "+updated.Title+".", "/books/")
}

func (h *BookHandler) borrow(w http.ResponseWriter, r *http.Request, id, userID string) {
	due, err := h.svc.Borrow(r.Context(), id, userID)
	switch {
	case errors.Is(err, book.ErrNotFound):
		http.Redirect(w, r, "/books/", http.StatusFound)
	case errors.Is(err, book.ErrAlreadyBorrowed):
		h.flashAndRedirect(w, r, "That book is already checked out.", "/books/")
	case err != nil:
		h.serverError(w, r, err)
	default:
		h.flashAndRedirect(w, r, "Enjoy! Please return by "+due.Format(book.DueDateFormat)+".", "/books/mybooks/")
	}
}

func (h *BookHandler) returnBook(w http.ResponseWriter, r *http.Request, id, userID string) {
	err := h.svc.Return(r.Context(), id, userID)
	switch {
	case errors.Is(err, book.ErrNotFound):
		http.Redirect(w, r, "/books/", http.StatusFound)
	case errors.Is(err, book.ErrNoOpenLoan):
		h.flashAndRedirect(w, r, "You haven't borrowed that book.", "/books/")
	case err != nil:
		h.serverError(w, r, err)
	default:
		h.flashAndRedirect(w, r, "Thanks for returning it!", "/books/")
	}
}

// reviewForm carries the rating form through validation.
type reviewForm struct {
	Rating float64 `validate:"gte=0,lte=5"`
	Review string  `validate:"max=5000"`
}

func (h *BookHandler) review(w http.ResponseWriter, r *http.Request, id, userID string) {
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.redirectOnDomainError(w, r, err)
		return
	}

	reviewed, err := h.svc.HasReviewed(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if reviewed {
		h.flashAndRedirect(w, r, "You have already reviewed "+b.Title+".", "/books/")
		return
	}

	renderForm := func(form reviewForm, errs map[string]string) {
		sess := session.FromRequest(r)
		h.render.HTML(w, r, "review", map[string]any{
			"Book":   h.viewModel(b, sess.UserID),
			"Form":   form,
			"Errors": errs,
		})
	}

	if r.Method != http.MethodPost {
		renderForm(reviewForm{}, nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.serverError(w, r, err)
		return
	}
	form := reviewForm{Review: strings.TrimSpace(r.FormValue("review"))}
	errs := map[string]string{}
	rating, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("rating")), 64)
	if err != nil {
		errs["rating"] = "Rating must be a number between 0 and 5"
	} else {
		form.Rating = rating
	}
	for field, msg := range fieldErrors(ValidateStruct(form)) {
		if _, taken := errs[field]; !taken {
			errs[field] = msg
		}
	}
	if len(errs) > 0 {
		renderForm(form, errs)
		return
	}

	if err := h.svc.Review(r.Context(), id, userID, form.Rating, form.Review); err != nil {
		if errors.Is(err, book.ErrAlreadyRated) {
			h.flashAndRedirect(w, r, "You have already reviewed "+b.Title+".", "/books/")
			return
		}
		h.serverError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "Your review of "+b.Title+" was saved.", "/books/")
}

func (h *BookHandler) favorite(w http.ResponseWriter, r *http.Request, id, userID string) {
	if err := h.svc.Favorite(r.Context(), id, userID); err != nil {
		h.redirectOnDomainError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "Added to your favorites.", "/books/favorites/")
}

func (h *BookHandler) delete(w http.ResponseWriter, r *http.Request, id, userID string) {
	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		h.redirectOnDomainError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "The book was deleted.", "/books/")
}

// api serves the syndication endpoints:
// /books/API/[{filter}[/{format}]]/ and /books/API/category/{name}[/{format}]/.
func (h *BookHandler) api(w http.ResponseWriter, r *http.Request, parts []string) {
	filterKey, categoryName, format := "recent", "", "JSON"
	switch len(parts) {
	case 0:
	case 1:
		if isFeedFormat(parts[0]) {
			format = parts[0]
		} else {
			filterKey = parts[0]
		}
	case 2:
		if strings.EqualFold(parts[0], "category") {
			filterKey, categoryName = "category", parts[1]
		} else {
			filterKey, format = parts[0], parts[1]
		}
	case 3:
		if !strings.EqualFold(parts[0], "category") {
			http.NotFound(w, r)
			return
		}
		filterKey, categoryName, format = "category", parts[1], parts[2]
	default:
		http.NotFound(w, r)
		return
	}

	sess := session.FromRequest(r)
	if (filterKey == "mybooks" || filterKey == "favorites") && !sess.LoggedIn() {
		httpx.JSONMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if filterKey == "category" {
		c, err := h.categories.GetByName(r.Context(), categoryName)
		if err != nil {
			if errors.Is(err, category.ErrNotFound) {
				httpx.JSONMessage(w, http.StatusNotFound, "Category not found")
				return
			}
			h.serverError(w, r, err)
			return
		}
		categoryName = c.Name
	}

	books, err := h.svc.List(r.Context(), book.ParseFilter(filterKey, categoryName, sess.UserID))
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			httpx.JSONMessage(w, http.StatusNotFound, "Category not found")
			return
		}
		h.serverError(w, r, err)
		return
	}

	views := book.Views(books, h.baseURL)
	fd := feed.New(h.baseURL, h.baseURL+r.URL.Path)

	var (
		body        []byte
		contentType string
	)
	switch strings.ToUpper(format) {
	case "JSON":
		body, err = fd.JSON(views)
		contentType = "application/json"
	case "XML":
		body, err = fd.XML("book", views)
		contentType = "application/xml"
	case "ATOM":
		body, err = fd.Atom(views)
		contentType = "application/atom+xml"
	case "RSS":
		body, err = fd.RSS(views)
		contentType = "application/rss+xml"
	default:
		httpx.JSONMessage(w, http.StatusNotFound, "Unknown feed format")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

func isFeedFormat(s string) bool {
	switch strings.ToUpper(s) {
	case "JSON", "XML", "ATOM", "RSS":
		return true
	}
	return false
}

// redirectOnDomainError sends not-found and not-the-lender failures back to
// the book list without comment; anything else is a server error.
func (h *BookHandler) redirectOnDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, book.ErrNotFound) || errors.Is(err, book.ErrForbidden) {
		http.Redirect(w, r, "/books/", http.StatusFound)
		return
	}
	h.serverError(w, r, err)
}

func (h *BookHandler) flashAndRedirect(w http.ResponseWriter, r *http.Request, msg, to string) {
	sess := session.FromRequest(r)
	sess.AddFlash(msg)
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("msg=\"session save failed\" error=%q", err)
	}
	http.Redirect(w, r, to, http.StatusFound)
}

func (h *BookHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("msg=\"request failed\" request_id=%s path=%s error=%q",
		httpx.RequestIDFrom(r), r.URL.Path, err)
	httpx.JSONMessage(w, http.StatusInternalServerError, "An internal error occurred")
}

func yearPtr(year int) *int {
	if year == 0 {
		return nil
	}
	return &year
}

func selectedSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
