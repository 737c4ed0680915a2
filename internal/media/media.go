package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store writes uploaded cover images to a local directory and serves them
// back under /media/.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// WithClock overrides the timestamp source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ImageName builds a collision-resistant stored name from an upload's
// original filename: the current unix timestamp, an underscore, then the
// sanitized original name.
func (s *Store) ImageName(original string) string {
	return fmt.Sprintf("%d_%s", s.now().Unix(), sanitize(original))
}

// sanitize keeps only characters safe in a filename served straight from
// disk. Everything else is dropped.
func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "upload"
	}
	return out
}

// Save stores the upload under a generated name and returns that name.
func (s *Store) Save(original string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := s.ImageName(original)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return name, nil
}

// Handler serves stored images. Mounted at /media/.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix("/media/", http.FileServer(http.Dir(s.dir)))
}
