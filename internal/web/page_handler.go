package web

import (
	"net/http"

	"lendinglib/internal/book"
)

// PageHandler serves the site pages outside the /books/ subtree.
type PageHandler struct {
	svc    *book.Service
	render *Renderer
}

func NewPageHandler(svc *book.Service, render *Renderer) *PageHandler {
	return &PageHandler{svc: svc, render: render}
}

func (h *PageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /about/", h.About)
	mux.HandleFunc("GET /healthz", h.Healthz)
}

// Home shows the landing page with the most recently added books.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.List(r.Context(), book.FilterRecent{})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]book.View, 0, len(books))
	for _, b := range books {
		views = append(views, b.View(""))
	}

	h.render.HTML(w, r, "index", map[string]any{
		"Books": views,
	})
}

func (h *PageHandler) About(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, "about", nil)
}

func (h *PageHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
