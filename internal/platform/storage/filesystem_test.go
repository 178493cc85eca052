package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs, err := NewFileStore(dir, "https://cdn.example.com/media/")
	require.NoError(t, err)

	key, err := fs.Write(context.Background(), "/jobs/abc.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "jobs/abc.png", key)
	assert.Equal(t, "https://cdn.example.com/media/jobs/abc.png", fs.URL(key))

	data, err := os.ReadFile(filepath.Join(dir, "jobs", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "../escape", "a/../../b", "."} {
		_, err := fs.Write(context.Background(), key, []byte("x"))
		assert.Error(t, err, key)
	}

	_, err = NewFileStore("", "/media")
	assert.Error(t, err)
}
