package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go-file-tree/pkg/apierror"
)

func TestStorageBasicOperations(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	require.NoError(t, store.MkdirAll("users/alice/docs", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "users", "alice", "docs", "hello.txt"), []byte("hello world"), 0o644))

	info, err := store.Stat("users/alice/docs/hello.txt")
	require.NoError(t, err)
	require.False(t, info.IsDir())

	exists, err := store.Exists("users/alice/docs/hello.txt")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists("users/alice/docs/missing.txt")
	require.NoError(t, err)
	require.False(t, exists)

	reader, err := store.OpenForRead("users/alice/docs/hello.txt")
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "hello world", string(content))

	_, err = store.OpenForRead("users/alice/docs/missing.txt")
	require.True(t, apierror.Is(err, apierror.CodeNotFound))

	_, err = store.OpenForRead("../outside.txt")
	require.True(t, apierror.Is(err, apierror.CodeUnauthorized))

	entries, err := store.ReadDir("users/alice/docs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hello.txt", entries[0].Name())
}
