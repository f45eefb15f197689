package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "video-1.mp4", "video/mp4", []byte("mp4"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/video-1.mp4", url)

	data, err := store.Get(context.Background(), "video-1.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), data)

	onDisk, err := os.ReadFile(filepath.Join(dir, "video-1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), onDisk)
}

func TestFileStorePutOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.Put(ctx, "a/b.json", "application/json", []byte("1"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "a/b.json", "application/json", []byte("2"))
	require.NoError(t, err)

	data, err := store.Get(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	entries, err := os.ReadDir(filepath.Join(store.BasePath(), "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStoreGetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "card-of-the-day.json")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestSanitizeKey(t *testing.T) {
	tests := map[string]string{
		"video-1.mp4":        "video-1.mp4",
		"/abs/video.mp4":     "abs/video.mp4",
		"./a/../b/video.mp4": "b/video.mp4",
		`a\b.mp4`:            "a/b.mp4",
	}
	for in, want := range tests {
		got, err := sanitizeKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", " ", "..", "../etc/passwd", "."} {
		_, err := sanitizeKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestFileStoreURLEscapesSegments(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.example.com/static")
	require.NoError(t, err)
	url, err := store.Put(context.Background(), "dir/a b.mp4", "video/mp4", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/static/dir/a%20b.mp4", url)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/kairopi-videos/video-1.mp4", PublicURL("kairopi-videos", "video-1.mp4"))
}
