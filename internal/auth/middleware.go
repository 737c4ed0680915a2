package auth

import (
	"net/http"
	"net/url"

	"lendinglib/internal/session"
)

// RequireLogin redirects anonymous requests to the login-required page,
// preserving the originally requested URL.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromRequest(r)
		if !sess.LoggedIn() {
			http.Redirect(w, r, "/login_required/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
