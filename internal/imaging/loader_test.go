package imaging

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTestImage writes a solid-colour PNG into dir and returns its path.
func writeTestImage(t *testing.T, dir, name string, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func md5File(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestNewIndex(t *testing.T) {
	ix := NewIndex([]string{"a", "b"}, nil)
	require.NotNil(t, ix)
	assert.NotNil(t, ix.records)
	assert.NotNil(t, ix.logger)
	assert.Equal(t, []string{"a", "b"}, ix.searchPaths)
}

func TestIndex_Lookup(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "photo.png", 200, 150, color.NRGBA{255, 128, 64, 255})
	ix := NewIndex(nil, quietLogger())

	rec, err := ix.Lookup(path)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path)
	assert.Equal(t, 200, rec.Width)
	assert.Equal(t, 150, rec.Height)
	assert.Equal(t, "png", rec.Format)
	assert.Equal(t, md5File(t, path), rec.Hash)
	assert.Len(t, rec.Hash, 32)
	assert.Positive(t, rec.FileSizeBytes)

	src := rec.Source()
	assert.Equal(t, rec.Hash, src.Hash)
	assert.Equal(t, 200, src.Width)
	assert.Equal(t, 150, src.Height)
	assert.Equal(t, path, src.Path)
}

func TestIndex_Lookup_Cached(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "photo.png", 20, 20, color.White)
	ix := NewIndex(nil, quietLogger())

	first, err := ix.Lookup(path)
	require.NoError(t, err)

	// Tamper with the cached record; an unchanged mtime must keep it.
	ix.mu.Lock()
	stale := first
	stale.Width = 999
	ix.records[path] = stale
	ix.mu.Unlock()

	again, err := ix.Lookup(path)
	require.NoError(t, err)
	assert.Equal(t, 999, again.Width)
}

func TestIndex_Lookup_Refreshes(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "photo.png", 20, 20, color.White)
	ix := NewIndex(nil, quietLogger())

	first, err := ix.Lookup(path)
	require.NoError(t, err)

	writeTestImage(t, dir, "photo.png", 40, 30, color.Black)
	later := first.ModTime.Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	second, err := ix.Lookup(path)
	require.NoError(t, err)
	assert.Equal(t, 40, second.Width)
	assert.Equal(t, 30, second.Height)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestIndex_Lookup_NonExistent(t *testing.T) {
	ix := NewIndex(nil, quietLogger())
	_, err := ix.Lookup("/nonexistent/path/to/image.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_Lookup_InvalidImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	ix := NewIndex(nil, quietLogger())
	_, err := ix.Lookup(path)
	assert.Error(t, err)
}

func TestIndex_EvictAndClear(t *testing.T) {
	dir := t.TempDir()
	a := writeTestImage(t, dir, "a.png", 10, 10, color.White)
	b := writeTestImage(t, dir, "b.png", 10, 10, color.Black)
	ix := NewIndex(nil, quietLogger())

	_, err := ix.Lookup(a)
	require.NoError(t, err)
	_, err = ix.Lookup(b)
	require.NoError(t, err)

	ix.Evict(a)
	ix.Evict("/nonexistent/path")
	ix.mu.RLock()
	_, hasA := ix.records[a]
	count := len(ix.records)
	ix.mu.RUnlock()
	assert.False(t, hasA)
	assert.Equal(t, 1, count)

	ix.Clear()
	ix.mu.RLock()
	count = len(ix.records)
	ix.mu.RUnlock()
	assert.Zero(t, count)
}

func TestIndex_Find(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	inSecond := writeTestImage(t, second, "nested/photo.png", 5, 5, color.White)
	inBoth := writeTestImage(t, first, "both.png", 5, 5, color.White)
	writeTestImage(t, second, "both.png", 5, 5, color.Black)

	ix := NewIndex([]string{first, second}, quietLogger())

	got, err := ix.Find("nested/photo.png")
	require.NoError(t, err)
	assert.Equal(t, inSecond, got)

	got, err = ix.Find("both.png")
	require.NoError(t, err)
	assert.Equal(t, inBoth, got, "first search path wins")

	got, err = ix.Find(inSecond)
	require.NoError(t, err)
	assert.Equal(t, inSecond, got)

	for _, name := range []string{"missing.png", "../both.png", "nested", filepath.Join(first, "missing.png")} {
		_, err := ix.Find(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestIndex_ConcurrentLookup(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "photo.png", 50, 50, color.NRGBA{128, 128, 128, 255})
	ix := NewIndex(nil, quietLogger())
	want := md5File(t, path)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := ix.Lookup(path)
			if err != nil {
				errs <- err
				return
			}
			if rec.Hash != want {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Lookup error: %v", err)
	}
}
