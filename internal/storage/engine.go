package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/crypto/blake2b"

	"go-file-tree/internal/metrics"
	"go-file-tree/pkg/apierror"
)

const (
	ChecksumSHA256  = "sha256"
	ChecksumBlake2b = "blake2b"

	copyChunkSize = 80 * 1024
)

// ProgressFunc receives the cumulative number of bytes written so far. It is
// called synchronously on the copying goroutine and must not block.
type ProgressFunc func(transferred int64)

// TreeStats summarizes a directory tree.
type TreeStats struct {
	Files       int
	Directories int
	Bytes       int64
}

// Engine performs streamed writes, moves and digests under the storage root.
// Paths are Root-relative and resolved through Storage on every call.
type Engine struct {
	store     *Storage
	algorithm string
	metrics   *metrics.Recorder
	rename    func(oldpath string, newpath string) error
}

func NewEngine(store *Storage, algorithm string, recorder *metrics.Recorder) (*Engine, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", ChecksumSHA256:
		algorithm = ChecksumSHA256
	case ChecksumBlake2b:
		algorithm = ChecksumBlake2b
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}

	return &Engine{store: store, algorithm: algorithm, metrics: recorder, rename: os.Rename}, nil
}

func (e *Engine) Algorithm() string {
	return e.algorithm
}

// Save writes r to a temporary sibling of p and renames it into place, so
// readers of p only ever observe a complete file.
func (e *Engine) Save(ctx context.Context, p string, r io.Reader) (written int64, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("save", written, time.Since(start), err) }()

	target, err := e.store.Resolve(p)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, apierror.IOError("failed to create parent directory", err)
	}

	written, err = e.writeAtomically(ctx, target, r, 0, nil)
	if err != nil {
		return 0, err
	}

	return written, nil
}

// MoveFile streams src to dst in fixed-size chunks, replacing dst, then
// removes src. It reports false without error when src does not exist. On
// failure or cancellation dst is left untouched and src stays intact.
func (e *Engine) MoveFile(ctx context.Context, src string, dst string, onProgress ProgressFunc) (moved bool, err error) {
	start := time.Now()
	var written int64
	defer func() { e.metrics.ObserveOperation("move", written, time.Since(start), err) }()

	srcAbs, dstAbs, err := e.resolvePair(src, dst)
	if err != nil {
		return false, err
	}

	moved, written, err = e.moveFile(ctx, srcAbs, dstAbs, 0, onProgress)
	return moved, err
}

// MoveDirectory recreates the tree of src under dst, moves every file and
// then removes the emptied source directories leaf-first. It reports false
// when src is not a directory. Source directories that cannot be removed
// afterwards are logged and left in place.
func (e *Engine) MoveDirectory(ctx context.Context, src string, dst string, onProgress ProgressFunc) (moved bool, err error) {
	start := time.Now()
	var written int64
	defer func() { e.metrics.ObserveOperation("move_directory", written, time.Since(start), err) }()

	srcAbs, dstAbs, err := e.resolvePair(src, dst)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(srcAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apierror.IOError("failed to stat source directory", err)
	}
	if !info.IsDir() {
		return false, nil
	}

	if dstAbs == srcAbs || isWithinRoot(srcAbs, dstAbs) {
		return false, apierror.InvalidArgument("cannot move a directory into itself", dst)
	}

	dirs, files, err := collectTree(srcAbs)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(dstAbs, info.Mode().Perm()|0o700); err != nil {
		return false, apierror.IOError("failed to create destination directory", err)
	}
	for _, rel := range dirs {
		if err := os.MkdirAll(filepath.Join(dstAbs, rel), 0o755); err != nil {
			return false, apierror.IOError("failed to create destination directory", err)
		}
	}

	for _, rel := range files {
		_, n, moveErr := e.moveFile(ctx, filepath.Join(srcAbs, rel), filepath.Join(dstAbs, rel), written, onProgress)
		written += n
		if moveErr != nil {
			return false, moveErr
		}
	}

	removeEmptyDirs(srcAbs, dirs)
	return true, nil
}

// Relocate moves src to dst with a single rename when both live on the same
// device and falls back to MoveFile or MoveDirectory otherwise. dst must not
// exist. It reports false without error when src does not exist.
func (e *Engine) Relocate(ctx context.Context, src string, dst string) (moved bool, err error) {
	srcAbs, dstAbs, err := e.resolvePair(src, dst)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(srcAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apierror.IOError("failed to stat source", err)
	}
	if info.IsDir() && isWithinRoot(srcAbs, dstAbs) {
		return false, apierror.InvalidArgument("cannot move a directory into itself", dst)
	}
	if _, err := os.Lstat(dstAbs); err == nil {
		return false, apierror.AlreadyExists("destination already exists", CleanRelative(dst))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, apierror.IOError("failed to stat destination", err)
	}

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return false, apierror.IOError("failed to create destination directory", err)
	}

	start := time.Now()
	renameErr := e.rename(srcAbs, dstAbs)
	if renameErr == nil {
		e.metrics.ObserveOperation("relocate", 0, time.Since(start), nil)
		return true, nil
	}
	if !errors.Is(renameErr, syscall.EXDEV) {
		return false, apierror.IOError("failed to rename", renameErr)
	}

	slog.Debug("rename crosses devices, copying instead", "src", CleanRelative(src), "dst", CleanRelative(dst))
	if info.IsDir() {
		return e.MoveDirectory(ctx, src, dst, nil)
	}
	return e.MoveFile(ctx, src, dst, nil)
}

// Checksum streams the file at p through the configured 256-bit digest.
func (e *Engine) Checksum(ctx context.Context, p string) (string, string, error) {
	file, err := e.store.OpenForRead(p)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", "", apierror.IOError("failed to stat file", err)
	}
	if info.IsDir() {
		return "", "", apierror.InvalidArgument("cannot checksum a directory", CleanRelative(p))
	}

	hasher := e.newHash()
	if _, err := copyChunks(ctx, hasher, file, 0, nil); err != nil {
		return "", "", err
	}

	return e.algorithm, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Delete removes a single file. It reports false when the file is already
// absent.
func (e *Engine) Delete(p string) (bool, error) {
	target, err := e.store.Resolve(p)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apierror.IOError("failed to stat file", err)
	}
	if info.IsDir() {
		return false, apierror.InvalidArgument("path is a directory", CleanRelative(p))
	}

	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apierror.IOError("failed to delete file", err)
	}

	return true, nil
}

// DeleteTree removes a directory and everything below it. It reports false
// when the directory is already absent.
func (e *Engine) DeleteTree(p string) (bool, error) {
	target, err := e.store.Resolve(p)
	if err != nil {
		return false, err
	}
	if target == e.store.RootAbs() {
		return false, apierror.InvalidArgument("cannot delete the storage root", "")
	}

	if _, err := os.Lstat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apierror.IOError("failed to stat directory", err)
	}

	if err := os.RemoveAll(target); err != nil {
		return false, apierror.IOError("failed to delete directory", err)
	}

	return true, nil
}

// Open returns the file at p for reading along with its metadata.
func (e *Engine) Open(p string) (*os.File, fs.FileInfo, error) {
	file, err := e.store.OpenForRead(p)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, apierror.IOError("failed to stat file", err)
	}

	return file, info, nil
}

// OpenRange returns a reader over length bytes of p starting at offset. A
// negative length reads to the end of the file.
func (e *Engine) OpenRange(p string, offset int64, length int64) (io.ReadCloser, error) {
	file, info, err := e.Open(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, apierror.InvalidArgument("path is a directory", CleanRelative(p))
	}

	size := info.Size()
	if offset < 0 || offset > size {
		_ = file.Close()
		return nil, apierror.InvalidArgument("range offset out of bounds", fmt.Sprintf("offset=%d size=%d", offset, size))
	}
	if length < 0 || offset+length > size {
		length = size - offset
	}

	return rangeReader{Reader: io.NewSectionReader(file, offset, length), Closer: file}, nil
}

// TreeSize counts the files, directories and bytes below p. Directories are
// read concurrently; unreadable entries are skipped.
func (e *Engine) TreeSize(ctx context.Context, p string) (TreeStats, error) {
	target, err := e.store.Resolve(p)
	if err != nil {
		return TreeStats{}, err
	}

	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TreeStats{}, apierror.NotFound("path not found", CleanRelative(p))
		}
		return TreeStats{}, apierror.IOError("failed to stat path", err)
	}
	if !info.IsDir() {
		return TreeStats{Files: 1, Bytes: info.Size()}, nil
	}

	var files, dirs, bytes atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, target, func(current string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil || current == target {
			return nil
		}

		if d.IsDir() {
			dirs.Add(1)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		entryInfo, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		files.Add(1)
		bytes.Add(entryInfo.Size())
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TreeStats{}, ctxErr
		}
		return TreeStats{}, apierror.IOError("failed to walk tree", err)
	}

	return TreeStats{Files: int(files.Load()), Directories: int(dirs.Load()), Bytes: bytes.Load()}, nil
}

func (e *Engine) resolvePair(src string, dst string) (string, string, error) {
	srcAbs, err := e.store.Resolve(src)
	if err != nil {
		return "", "", err
	}
	dstAbs, err := e.store.Resolve(dst)
	if err != nil {
		return "", "", err
	}
	if srcAbs == e.store.RootAbs() || dstAbs == e.store.RootAbs() {
		return "", "", apierror.InvalidArgument("cannot move the storage root", "")
	}

	return srcAbs, dstAbs, nil
}

// moveFile copies srcAbs to dstAbs reporting progress offset by base, then
// removes srcAbs. The returned byte count covers only this file.
func (e *Engine) moveFile(ctx context.Context, srcAbs string, dstAbs string, base int64, onProgress ProgressFunc) (bool, int64, error) {
	info, err := os.Lstat(srcAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, apierror.IOError("failed to stat source file", err)
	}
	if !info.Mode().IsRegular() {
		return false, 0, apierror.InvalidArgument("source is not a regular file", filepath.Base(srcAbs))
	}

	if srcAbs == dstAbs {
		return true, 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return false, 0, apierror.IOError("failed to create destination directory", err)
	}

	source, err := os.Open(srcAbs)
	if err != nil {
		return false, 0, apierror.IOError("failed to open source file", err)
	}

	written, err := e.writeAtomically(ctx, dstAbs, source, base, onProgress)
	_ = source.Close()
	if err != nil {
		return false, 0, err
	}

	_ = os.Chtimes(dstAbs, info.ModTime(), info.ModTime())
	_ = os.Chmod(dstAbs, info.Mode().Perm())

	if err := os.Remove(srcAbs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, written, apierror.IOError("copied but failed to remove source", err)
	}

	return true, written, nil
}

func (e *Engine) writeAtomically(ctx context.Context, target string, r io.Reader, base int64, onProgress ProgressFunc) (int64, error) {
	temp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".part-*")
	if err != nil {
		return 0, apierror.IOError("failed to create temporary file", err)
	}
	tempPath := temp.Name()

	written, err := copyChunks(ctx, temp, r, base, onProgress)
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}

	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return 0, apierror.IOError("failed to flush file", err)
	}

	if err := replaceFile(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return 0, apierror.IOError("failed to move file into place", err)
	}

	return written, nil
}

func (e *Engine) newHash() hash.Hash {
	if e.algorithm == ChecksumBlake2b {
		h, _ := blake2b.New256(nil)
		return h
	}
	return sha256.New()
}

// copyChunks copies r into w one chunk at a time and checks ctx before each
// chunk, so a cancelled copy stops after at most one in-flight chunk.
func copyChunks(ctx context.Context, w io.Writer, r io.Reader, base int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, apierror.IOError("failed to write data", err)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(base + written)
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, apierror.IOError("failed to read data", readErr)
		}
	}
}

func replaceFile(from string, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}

	// Some platforms refuse to rename over an existing file.
	if _, statErr := os.Lstat(to); statErr == nil {
		if removeErr := os.Remove(to); removeErr != nil {
			return err
		}
		return os.Rename(from, to)
	}

	return err
}

// collectTree lists every directory and regular file under root as paths
// relative to root, parents before children.
func collectTree(root string) ([]string, []string, error) {
	var dirs, files []string
	stack := []string{""}

	for len(stack) > 0 {
		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(filepath.Join(root, rel))
		if err != nil {
			return nil, nil, apierror.IOError("failed to read source directory", err)
		}

		for _, entry := range entries {
			childRel := filepath.Join(rel, entry.Name())
			switch {
			case entry.IsDir():
				dirs = append(dirs, childRel)
				stack = append(stack, childRel)
			case entry.Type().IsRegular():
				files = append(files, childRel)
			}
		}
	}

	return dirs, files, nil
}

// removeEmptyDirs removes root and the given subdirectories deepest first.
// It only removes directories that are empty and never fails.
func removeEmptyDirs(root string, dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		dir := filepath.Join(root, dirs[i])
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("leaving source directory after move", "path", dir, "error", err)
		}
	}

	if err := os.Remove(root); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("leaving source directory after move", "path", root, "error", err)
	}
}

type rangeReader struct {
	io.Reader
	io.Closer
}
