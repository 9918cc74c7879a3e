package artifact

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(FileStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestFileStorePutOpen(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	uri, err := s.Put(ctx, "exports/job-1.csv", strings.NewReader("id,name\n1,Ann\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"), uri)
	assert.True(t, strings.HasSuffix(uri, "/exports/job-1.csv"), uri)

	rc, err := s.Open(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Ann\n", readAll(t, rc))

	rc, err = s.Open(ctx, "exports/job-1.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Ann\n", readAll(t, rc))
}

func TestFileStoreWriteOnce(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "a.json", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Put(ctx, "a.json", strings.NewReader("second"))
	require.ErrorIs(t, err, ErrExists)

	rc, err := s.Open(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "first", readAll(t, rc))

	leftovers, err := filepath.Glob(filepath.Join(s.root, ".upload-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	uri, err := s.Put(ctx, "exports/job-2.csv", strings.NewReader("id\n"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, uri))

	_, err = s.Open(ctx, uri)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, uri), "missing artifacts delete cleanly")
	require.ErrorIs(t, s.Delete(ctx, "file:///elsewhere/a.csv"), ErrForeignURI)

	_, err = s.Put(ctx, "exports/job-2.csv", strings.NewReader("id\n"))
	require.NoError(t, err, "key is free again after delete")
}

func TestFileStoreRejectsBadKeys(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "  ", "/etc/passwd", "../x", "a/../../x", "."} {
		_, err := s.Put(ctx, key, strings.NewReader("x"))
		require.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}

	_, err := s.Open(ctx, "file:///etc/passwd")
	require.ErrorIs(t, err, ErrForeignURI)

	_, err = s.Open(ctx, "s3://bucket/key")
	require.ErrorIs(t, err, ErrForeignURI)

	_, err = s.Open(ctx, "missing.csv")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorePutCanceled(t *testing.T) {
	t.Parallel()
	s := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "a.csv", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Open(context.Background(), "a.csv")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore(FileStoreOptions{Dir: " "})
	require.Error(t, err)
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	got, err := cleanKey(`exports\2024//job.csv`)
	require.NoError(t, err)
	assert.Equal(t, "exports/2024/job.csv", got)
}
