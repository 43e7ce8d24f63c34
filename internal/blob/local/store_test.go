package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiranshivaraju/reviewexec/internal/blob"
	"github.com/kiranshivaraju/reviewexec/internal/blob/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeObject places a fixture where the exporter would have stored it.
func writeObject(t *testing.T, dir, key, body string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestOpen_ReadsStoredObject(t *testing.T) {
	dir := t.TempDir()
	writeObject(t, dir, "exports/2024/design.txt", "hello review")
	s := local.New(dir)
	ctx := context.Background()

	rc, err := s.Open(ctx, "exports/2024/design.txt")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello review", string(data))
}

func TestOpen_Missing(t *testing.T) {
	s := local.New(t.TempDir())

	_, err := s.Open(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestOpen_RejectsTraversal(t *testing.T) {
	s := local.New(t.TempDir())

	for _, key := range []string{"../etc/passwd", "/etc/passwd", "a/../../b", ""} {
		_, err := s.Open(context.Background(), key)
		require.Error(t, err, key)
		assert.NotErrorIs(t, err, blob.ErrNotFound, key)
	}
}

func TestOpen_CancelledContext(t *testing.T) {
	s := local.New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
