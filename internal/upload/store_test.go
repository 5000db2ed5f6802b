package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRemoveHonoursPreference(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	off := New(dir, false)
	require.NoError(t, off.Remove("photo.jpg"))
	assert.FileExists(t, p)

	on := New(dir, true)
	require.NoError(t, on.Remove("photo.jpg"))
	assert.NoFileExists(t, p)

	// Already gone.
	assert.NoError(t, on.Remove("photo.jpg"))
}

func TestPathStripsDirectories(t *testing.T) {
	s := New("/srv/uploads", true)
	got, ok := s.Path("../../etc/passwd")
	require.True(t, ok)
	assert.Equal(t, "/srv/uploads/passwd", got)

	_, ok = s.Path("  ")
	assert.False(t, ok)
}

type recorder struct{ removed []string }

func (r *recorder) Remove(name string) error {
	r.removed = append(r.removed, name)
	return nil
}

func TestPendingFlushAndDiscard(t *testing.T) {
	var p Pending
	p.Schedule("a.pdf")
	p.Schedule("")
	p.Schedule("b.png")
	assert.Equal(t, []string{"a.pdf", "b.png"}, p.Names())

	r := &recorder{}
	p.Flush(r, zap.NewNop().Sugar())
	assert.Equal(t, []string{"a.pdf", "b.png"}, r.removed)
	assert.Empty(t, p.Names())

	p.Schedule("c.gif")
	p.Discard()
	p.Flush(r, zap.NewNop().Sugar())
	assert.Len(t, r.removed, 2)
}
