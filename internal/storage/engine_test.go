package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"go-file-tree/pkg/apierror"
)

func newTestEngine(t *testing.T, algorithm string) (*Engine, string) {
	t.Helper()

	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	engine, err := NewEngine(store, algorithm, nil)
	require.NoError(t, err)

	return engine, root
}

func TestNewEngineRejectsUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = NewEngine(store, "md5", nil)
	require.Error(t, err)
}

func TestEngineSave(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")

	written, err := engine.Save(context.Background(), "users/alice/new/dir/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), written)

	content, err := os.ReadFile(filepath.Join(root, "users", "alice", "new", "dir", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	_, err = engine.Save(context.Background(), "users/alice/new/dir/a.txt", strings.NewReader("bye"))
	require.NoError(t, err)
	content, err = os.ReadFile(filepath.Join(root, "users", "alice", "new", "dir", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "bye", string(content))

	entries, err := os.ReadDir(filepath.Join(root, "users", "alice", "new", "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEngineMoveFileRoundTrip(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")

	payload := make([]byte, 3*copyChunkSize+123)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "users", "alice"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "users", "alice", "a.bin"), payload, 0o644))

	var progress []int64
	moved, err := engine.MoveFile(context.Background(), "users/alice/a.bin", "users/alice/sub/b.bin", func(n int64) {
		progress = append(progress, n)
	})
	require.NoError(t, err)
	require.True(t, moved)
	require.NoFileExists(t, filepath.Join(root, "users", "alice", "a.bin"))

	require.Len(t, progress, 4)
	for i := 1; i < len(progress); i++ {
		require.Greater(t, progress[i], progress[i-1])
	}
	require.Equal(t, int64(len(payload)), progress[len(progress)-1])

	moved, err = engine.MoveFile(context.Background(), "users/alice/sub/b.bin", "users/alice/a.bin", nil)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoFileExists(t, filepath.Join(root, "users", "alice", "sub", "b.bin"))

	content, err := os.ReadFile(filepath.Join(root, "users", "alice", "a.bin"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, content))
}

func TestEngineMoveFileMissingSource(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, "")

	moved, err := engine.MoveFile(context.Background(), "users/alice/missing", "users/alice/other", nil)
	require.NoError(t, err)
	require.False(t, moved)
}

func TestEngineMoveFileReplacesDestination(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/a.txt", "new")
	writeTestFile(t, root, "users/alice/b.txt", "old")

	moved, err := engine.MoveFile(context.Background(), "users/alice/a.txt", "users/alice/b.txt", nil)
	require.NoError(t, err)
	require.True(t, moved)

	content, err := os.ReadFile(filepath.Join(root, "users", "alice", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestEngineMoveFileCancelled(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	payload := bytes.Repeat([]byte("x"), 4*copyChunkSize)
	writeTestFile(t, root, "users/alice/big.bin", string(payload))

	ctx, cancel := context.WithCancel(context.Background())
	chunks := 0
	moved, err := engine.MoveFile(ctx, "users/alice/big.bin", "users/alice/out/big.bin", func(int64) {
		chunks++
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, moved)
	require.Equal(t, 1, chunks)

	content, err := os.ReadFile(filepath.Join(root, "users", "alice", "big.bin"))
	require.NoError(t, err)
	require.Len(t, content, len(payload))

	entries, err := os.ReadDir(filepath.Join(root, "users", "alice", "out"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEngineMoveDirectory(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/src/a.txt", "aaaa")
	writeTestFile(t, root, "users/alice/src/nested/b.txt", "bb")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "users", "alice", "src", "empty"), 0o755))

	var last int64
	moved, err := engine.MoveDirectory(context.Background(), "users/alice/src", "users/alice/dst", func(n int64) {
		require.GreaterOrEqual(t, n, last)
		last = n
	})
	require.NoError(t, err)
	require.True(t, moved)
	require.Equal(t, int64(6), last)

	require.NoDirExists(t, filepath.Join(root, "users", "alice", "src"))
	require.FileExists(t, filepath.Join(root, "users", "alice", "dst", "a.txt"))
	require.FileExists(t, filepath.Join(root, "users", "alice", "dst", "nested", "b.txt"))
	require.DirExists(t, filepath.Join(root, "users", "alice", "dst", "empty"))
}

func TestEngineMoveDirectoryEdgeCases(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/file.txt", "x")
	writeTestFile(t, root, "users/alice/dir/a.txt", "x")

	moved, err := engine.MoveDirectory(context.Background(), "users/alice/file.txt", "users/alice/other", nil)
	require.NoError(t, err)
	require.False(t, moved)

	moved, err = engine.MoveDirectory(context.Background(), "users/alice/missing", "users/alice/other", nil)
	require.NoError(t, err)
	require.False(t, moved)

	_, err = engine.MoveDirectory(context.Background(), "users/alice/dir", "users/alice/dir/inside", nil)
	require.True(t, apierror.Is(err, apierror.CodeInvalidArgument))
	require.FileExists(t, filepath.Join(root, "users", "alice", "dir", "a.txt"))
}

func TestEngineMoveDirectoryLeavesStrayEntries(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges")
	}

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/src/a.txt", "aaaa")
	writeTestFile(t, root, "users/alice/target.txt", "t")
	link := filepath.Join(root, "users", "alice", "src", "link")
	require.NoError(t, os.Symlink(filepath.Join(root, "users", "alice", "target.txt"), link))

	moved, err := engine.MoveDirectory(context.Background(), "users/alice/src", "users/alice/dst", nil)
	require.NoError(t, err)
	require.True(t, moved)

	require.FileExists(t, filepath.Join(root, "users", "alice", "dst", "a.txt"))
	require.NoFileExists(t, filepath.Join(root, "users", "alice", "src", "a.txt"))
	require.DirExists(t, filepath.Join(root, "users", "alice", "src"))

	_, err = os.Lstat(link)
	require.NoError(t, err)
}

func TestEngineRelocate(t *testing.T) {
	t.Parallel()

	t.Run("renames on the same device", func(t *testing.T) {
		engine, root := newTestEngine(t, "")
		writeTestFile(t, root, "users/alice/src/a.txt", "aaaa")
		writeTestFile(t, root, "users/alice/src/nested/b.txt", "bb")

		moved, err := engine.Relocate(context.Background(), "users/alice/src", "users/alice/.trash/x_src")
		require.NoError(t, err)
		require.True(t, moved)
		require.NoDirExists(t, filepath.Join(root, "users", "alice", "src"))
		require.FileExists(t, filepath.Join(root, "users", "alice", ".trash", "x_src", "nested", "b.txt"))
	})

	t.Run("copies across devices", func(t *testing.T) {
		engine, root := newTestEngine(t, "")
		engine.rename = func(oldpath string, newpath string) error {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		writeTestFile(t, root, "users/alice/src/a.txt", "aaaa")
		writeTestFile(t, root, "users/alice/f.txt", "f")

		moved, err := engine.Relocate(context.Background(), "users/alice/src", "users/alice/dst")
		require.NoError(t, err)
		require.True(t, moved)
		require.NoDirExists(t, filepath.Join(root, "users", "alice", "src"))
		require.FileExists(t, filepath.Join(root, "users", "alice", "dst", "a.txt"))

		moved, err = engine.Relocate(context.Background(), "users/alice/f.txt", "users/alice/g.txt")
		require.NoError(t, err)
		require.True(t, moved)
		require.FileExists(t, filepath.Join(root, "users", "alice", "g.txt"))
	})

	t.Run("refuses occupied destinations", func(t *testing.T) {
		engine, root := newTestEngine(t, "")
		writeTestFile(t, root, "users/alice/a.txt", "a")
		writeTestFile(t, root, "users/alice/b.txt", "b")

		_, err := engine.Relocate(context.Background(), "users/alice/a.txt", "users/alice/b.txt")
		require.True(t, apierror.Is(err, apierror.CodeAlreadyExists))
		require.FileExists(t, filepath.Join(root, "users", "alice", "a.txt"))

		moved, err := engine.Relocate(context.Background(), "users/alice/missing", "users/alice/c.txt")
		require.NoError(t, err)
		require.False(t, moved)

		_, err = engine.Relocate(context.Background(), "users/alice", "users/alice/inside")
		require.True(t, apierror.Is(err, apierror.CodeInvalidArgument))
	})
}

func TestEngineDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/a.txt", "x")
	writeTestFile(t, root, "users/alice/tree/b/c.txt", "x")

	deleted, err := engine.Delete("users/alice/a.txt")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = engine.Delete("users/alice/a.txt")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = engine.DeleteTree("users/alice/tree")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = engine.DeleteTree("users/alice/tree")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestEngineChecksum(t *testing.T) {
	t.Parallel()

	for _, algorithm := range []string{ChecksumSHA256, ChecksumBlake2b} {
		t.Run(algorithm, func(t *testing.T) {
			engine, root := newTestEngine(t, algorithm)
			writeTestFile(t, root, "users/alice/a.txt", "content")

			name, first, err := engine.Checksum(context.Background(), "users/alice/a.txt")
			require.NoError(t, err)
			require.Equal(t, algorithm, name)
			require.Len(t, first, 64)

			_, second, err := engine.Checksum(context.Background(), "users/alice/a.txt")
			require.NoError(t, err)
			require.Equal(t, first, second)

			writeTestFile(t, root, "users/alice/a.txt", "changed")
			_, third, err := engine.Checksum(context.Background(), "users/alice/a.txt")
			require.NoError(t, err)
			require.NotEqual(t, first, third)

			_, _, err = engine.Checksum(context.Background(), "users/alice/missing.txt")
			require.True(t, apierror.Is(err, apierror.CodeNotFound))
		})
	}

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/known.txt", "abc")
	_, digest, err := engine.Checksum(context.Background(), "users/alice/known.txt")
	require.NoError(t, err)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)
}

func TestEngineOpenRange(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/a.txt", "0123456789")

	reader, err := engine.OpenRange("users/alice/a.txt", 2, 4)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "2345", string(content))

	reader, err = engine.OpenRange("users/alice/a.txt", 7, -1)
	require.NoError(t, err)
	content, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "789", string(content))

	_, err = engine.OpenRange("users/alice/a.txt", 11, 1)
	require.True(t, apierror.Is(err, apierror.CodeInvalidArgument))
}

func TestEngineTreeSize(t *testing.T) {
	t.Parallel()

	engine, root := newTestEngine(t, "")
	writeTestFile(t, root, "users/alice/a.txt", "12345")
	writeTestFile(t, root, "users/alice/x/y/b.txt", "123")
	writeTestFile(t, root, "users/alice/x/c.txt", "1")

	stats, err := engine.TreeSize(context.Background(), "users/alice")
	require.NoError(t, err)
	require.Equal(t, TreeStats{Files: 3, Directories: 2, Bytes: 9}, stats)

	stats, err = engine.TreeSize(context.Background(), "users/alice/a.txt")
	require.NoError(t, err)
	require.Equal(t, TreeStats{Files: 1, Bytes: 5}, stats)

	_, err = engine.TreeSize(context.Background(), "users/alice/missing")
	require.True(t, apierror.Is(err, apierror.CodeNotFound))
}
