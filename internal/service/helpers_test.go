package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-file-tree/internal/model"
	"go-file-tree/internal/repository"
	"go-file-tree/internal/storage"
)

var (
	alice = model.Principal{ID: "alice", RootPath: "users/alice", Active: true}
	bob   = model.Principal{ID: "bob", RootPath: "users/bob", Active: true}
)

type testEnv struct {
	root    string
	store   *storage.Storage
	engine  *storage.Engine
	records *repository.BadgerTrashStore
	trash   *TrashService
	audit   *recordingSink
	files   *FileTreeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	store, err := storage.New(root)
	require.NoError(t, err)

	engine, err := storage.NewEngine(store, storage.ChecksumSHA256, nil)
	require.NoError(t, err)

	records, err := repository.OpenBadgerTrashStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	sink := &recordingSink{}
	audit := NewAuditService(sink)
	trash := NewTrashService(store, engine, records, audit, nil, 0)

	return &testEnv{
		root:    root,
		store:   store,
		engine:  engine,
		records: records,
		trash:   trash,
		audit:   sink,
		files:   NewFileTreeService(store, engine, trash, audit),
	}
}

func (e *testEnv) write(t *testing.T, rel string, content string) {
	t.Helper()

	full := e.abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (e *testEnv) touch(t *testing.T, rel string, modified time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(e.abs(rel), modified, modified))
}

func (e *testEnv) read(t *testing.T, rel string) string {
	t.Helper()

	content, err := os.ReadFile(e.abs(rel))
	require.NoError(t, err)
	return string(content)
}

func (e *testEnv) abs(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}
