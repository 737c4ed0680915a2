package auth

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"lendinglib/internal/httpx"
	"lendinglib/internal/session"
)

// Renderer draws HTML pages. Satisfied by the web package's template
// renderer.
type Renderer interface {
	HTML(w http.ResponseWriter, r *http.Request, name string, data map[string]any)
}

type HTTPHandler struct {
	svc      *Service
	sessions *session.Service
	render   Renderer

	googleClientID string
	facebookAppID  string
	baseURL        string
}

func NewHTTPHandler(svc *Service, sessions *session.Service, render Renderer, googleClientID, facebookAppID, baseURL string) *HTTPHandler {
	return &HTTPHandler{
		svc:            svc,
		sessions:       sessions,
		render:         render,
		googleClientID: googleClientID,
		facebookAppID:  facebookAppID,
		baseURL:        baseURL,
	}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login/", h.Login)
	mux.HandleFunc("GET /login_required/", h.LoginRequired)
	mux.HandleFunc("GET /oauth2callback", h.OAuthCallback)
	mux.HandleFunc("POST /fbconnect", h.FBConnect)
	mux.HandleFunc("GET /disconnect/", h.Disconnect)
}

// Login issues a fresh anti-forgery state token and renders the sign-in page.
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := NewStateToken()
	if err != nil {
		httpx.JSONMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	sess := session.FromRequest(r)
	sess.State = state
	sess.NextURL = r.URL.Query().Get("next")
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("msg=\"session save failed\" error=%q", err)
		httpx.JSONMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	h.render.HTML(w, r, "login", map[string]any{
		"State":          state,
		"GoogleClientID": h.googleClientID,
		"FacebookAppID":  h.facebookAppID,
		"Next":           sess.NextURL,
	})
}

// LoginRequired explains that the requested page needs a sign-in.
func (h *HTTPHandler) LoginRequired(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, "login_required", map[string]any{
		"Next": r.URL.Query().Get("next"),
	})
}

// OAuthCallback finishes the Google redirect flow. The state check runs
// before anything is sent to the provider.
func (h *HTTPHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	state := r.URL.Query().Get("state")
	if state == "" || state != sess.State {
		httpx.JSONMessage(w, http.StatusUnauthorized, "Invalid state parameter")
		return
	}

	p, ok := h.svc.Provider("google")
	if !ok {
		httpx.JSONMessage(w, http.StatusInternalServerError, "Sign-in provider is not configured")
		return
	}

	creds, err := p.ExchangeCode(r.Context(), r.URL.Query().Get("code"), h.baseURL+"/oauth2callback")
	if err != nil {
		h.flowFail(w, err)
		return
	}
	h.finishLogin(w, r, p, creds, true)
}

// FBConnect finishes the Facebook flow: the short-lived token arrives in the
// POST body, the state token in the query string.
func (h *HTTPHandler) FBConnect(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	state := r.URL.Query().Get("state")
	if state == "" || state != sess.State {
		httpx.JSONMessage(w, http.StatusUnauthorized, "Invalid state parameter")
		return
	}

	p, ok := h.svc.Provider("facebook")
	if !ok {
		httpx.JSONMessage(w, http.StatusInternalServerError, "Sign-in provider is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		httpx.JSONMessage(w, http.StatusBadRequest, "Could not read access token")
		return
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		httpx.JSONMessage(w, http.StatusUnauthorized, "Missing access token")
		return
	}

	creds, err := p.ExchangeCode(r.Context(), token, "")
	if err != nil {
		h.flowFail(w, err)
		return
	}
	h.finishLogin(w, r, p, creds, false)
}

// finishLogin runs the shared tail of both flows. redirect selects between a
// 302 to the pre-login page (Google's top-level navigation) and a JSON
// acknowledgement (Facebook's XHR post).
func (h *HTTPHandler) finishLogin(w http.ResponseWriter, r *http.Request, p Provider, creds Credentials, redirect bool) {
	sess := session.FromRequest(r)

	name, err := h.svc.CompleteLogin(r.Context(), sess, p, creds)
	if err != nil {
		if errors.Is(err, ErrAlreadyConnected) {
			httpx.JSONMessage(w, http.StatusOK, ErrAlreadyConnected.Message)
			return
		}
		h.flowFail(w, err)
		return
	}

	sess.AddFlash("You are now logged in as " + name)
	next := sess.NextURL
	sess.NextURL = ""
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("msg=\"session save failed\" error=%q", err)
		httpx.JSONMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	if next == "" || !strings.HasPrefix(next, "/") {
		next = "/books/"
	}
	if redirect {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	httpx.JSONMessage(w, http.StatusOK, "You are now logged in as "+name)
}

// Disconnect signs the user out and redirects to the book list.
func (h *HTTPHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	if h.svc.Logout(r.Context(), sess) {
		sess.AddFlash("You have been successfully logged out.")
	} else {
		sess.AddFlash("You were not logged in to begin with!")
	}
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("msg=\"session save failed\" error=%q", err)
		httpx.JSONMessage(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	http.Redirect(w, r, "/books/", http.StatusFound)
}

func (h *HTTPHandler) flowFail(w http.ResponseWriter, err error) {
	var fe *FlowError
	if errors.As(err, &fe) {
		httpx.JSONMessage(w, fe.Status, fe.Message)
		return
	}
	log.Printf("msg=\"sign-in failed\" error=%q", err)
	httpx.JSONMessage(w, http.StatusInternalServerError, "Sign-in failed")
}
