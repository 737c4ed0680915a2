package web

import (
	"bytes"
	"embed"
	"html/template"
	"log"
	"net/http"

	"lendinglib/internal/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcMap = template.FuncMap{
	"pluralize": func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	},
}

var pageNames = []string{
	"index", "about", "books", "search", "book_form", "review",
	"login", "login_required",
}

// Renderer draws pages from the embedded templates. Every page is parsed
// against the base layout at startup so template errors surface immediately.
type Renderer struct {
	sessions  *session.Service
	templates map[string]*template.Template
}

func NewRenderer(sessions *session.Service) (*Renderer, error) {
	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("base").Funcs(funcMap).ParseFS(templateFS,
			"templates/base.tmpl", "templates/"+name+".tmpl")
		if err != nil {
			return nil, err
		}
		templates[name] = t
	}
	return &Renderer{sessions: sessions, templates: templates}, nil
}

// HTML renders the named page. Session identity and drained flash messages
// are injected into the data map; pages are buffered so a mid-render failure
// never produces a half-written response.
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	t, ok := rd.templates[name]
	if !ok {
		log.Printf("msg=\"unknown template\" name=%s", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}

	sess := session.FromRequest(r)
	flashes := sess.PopFlash()
	if len(flashes) > 0 {
		if err := rd.sessions.Save(r.Context(), sess); err != nil {
			log.Printf("msg=\"session save failed\" error=%q", err)
		}
	}
	data["LoggedIn"] = sess.LoggedIn()
	data["Username"] = sess.Username
	data["UserPicture"] = sess.Picture
	data["Flashes"] = flashes

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		log.Printf("msg=\"template render failed\" template=%s error=%q", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
