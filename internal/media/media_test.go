package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	}
}

func TestStore_ImageName(t *testing.T) {
	s := NewStore(t.TempDir()).WithClock(fixedClock())
	prefix := "1769904000_"

	tests := []struct {
		original string
		want     string
	}{
		{"cover.jpg", prefix + "cover.jpg"},
		{"my cover!.jpg", prefix + "mycover.jpg"},
		{"../../etc/passwd", prefix + "passwd"},
		{"UPPER_case-1.png", prefix + "UPPER_case-1.png"},
		{"", prefix + "upload"},
		{"!!!", prefix + "upload"},
	}
	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ImageName(tt.original))
		})
	}
}

func TestStore_Save(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir).WithClock(fixedClock())

	name, err := s.Save("cover.jpg", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "1769904000_cover.jpg", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestStore_SaveCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "media")
	s := NewStore(dir)

	_, err := s.Save("cover.jpg", strings.NewReader("x"))
	require.NoError(t, err)
}
