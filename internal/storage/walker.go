package storage

import (
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

// Walker enumerates directories under the storage root. It never caches:
// each List call and each range over a walk sequence reads the disk again.
// Symbolic links are neither followed nor reported.
type Walker struct {
	store *Storage
	skip  map[string]struct{}
}

// NewWalker returns a Walker that hides directories whose name matches one
// of skipDirs (case-insensitive).
func NewWalker(store *Storage, skipDirs ...string) *Walker {
	skip := make(map[string]struct{}, len(skipDirs))
	for _, name := range skipDirs {
		skip[strings.ToLower(name)] = struct{}{}
	}

	return &Walker{store: store, skip: skip}
}

// List returns the files and directories directly inside root. Entries whose
// metadata cannot be read are left out.
func (w *Walker) List(root string) ([]model.TreeEntry, []model.TreeEntry, error) {
	rootRel, err := w.openRoot(root)
	if err != nil {
		return nil, nil, err
	}

	entries, err := w.store.ReadDir(rootRel)
	if err != nil {
		return nil, nil, apierror.IOError("failed to read directory", err)
	}

	files := make([]model.TreeEntry, 0, len(entries))
	dirs := make([]model.TreeEntry, 0)
	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if entry.IsDir() && w.skipped(entry.Name()) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		item := NewTreeEntry(joinRel(rootRel, entry.Name()), info)
		if item.IsDir() {
			dirs = append(dirs, item)
		} else {
			files = append(files, item)
		}
	}

	return files, dirs, nil
}

// WalkFiles yields every regular file beneath root together with its path
// relative to root.
func (w *Walker) WalkFiles(root string) (iter.Seq2[model.TreeEntry, string], error) {
	return w.walk(root, true, false)
}

// WalkDirs yields every directory beneath root, excluding root itself.
func (w *Walker) WalkDirs(root string) (iter.Seq2[model.TreeEntry, string], error) {
	return w.walk(root, false, true)
}

// WalkAll yields files and directories in a single pass.
func (w *Walker) WalkAll(root string) (iter.Seq2[model.TreeEntry, string], error) {
	return w.walk(root, true, true)
}

type walkFrame struct {
	rel     string
	rootRel string
}

func (w *Walker) walk(root string, wantFiles bool, wantDirs bool) (iter.Seq2[model.TreeEntry, string], error) {
	rootRel, err := w.openRoot(root)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(model.TreeEntry, string) bool) {
		stack := []walkFrame{{rel: "", rootRel: rootRel}}

		for len(stack) > 0 {
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, readErr := w.store.ReadDir(frame.rootRel)
			if readErr != nil {
				slog.Warn("skipping unreadable directory", "path", frame.rootRel, "error", readErr)
				continue
			}

			var children []walkFrame
			for _, entry := range entries {
				if entry.Type()&fs.ModeSymlink != 0 {
					continue
				}

				name := entry.Name()
				rel := joinRel(frame.rel, name)
				entryRootRel := joinRel(frame.rootRel, name)

				if entry.IsDir() {
					if w.skipped(name) {
						continue
					}
					children = append(children, walkFrame{rel: rel, rootRel: entryRootRel})
					if !wantDirs {
						continue
					}
				} else if !wantFiles || !entry.Type().IsRegular() {
					continue
				}

				info, infoErr := entry.Info()
				if infoErr != nil {
					slog.Warn("skipping unreadable entry", "path", entryRootRel, "error", infoErr)
					continue
				}

				if !yield(NewTreeEntry(entryRootRel, info), rel) {
					return
				}
			}

			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}

	return seq, nil
}

func (w *Walker) openRoot(root string) (string, error) {
	rootRel := CleanRelative(root)

	info, err := w.store.Stat(rootRel)
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			return "", err
		}
		if errors.Is(err, fs.ErrNotExist) {
			return "", apierror.NotFound("directory not found", rootRel)
		}
		return "", apierror.IOError("failed to stat directory", err)
	}
	if !info.IsDir() {
		return "", apierror.InvalidArgument("path is not a directory", rootRel)
	}

	return rootRel, nil
}

func (w *Walker) skipped(name string) bool {
	_, ok := w.skip[strings.ToLower(name)]
	return ok
}

// NewTreeEntry builds the entry for info at the given Root-relative path.
func NewTreeEntry(relativePath string, info fs.FileInfo) model.TreeEntry {
	entry := model.TreeEntry{
		Name:         info.Name(),
		ModifiedAt:   info.ModTime().UTC(),
		RelativePath: relativePath,
	}

	if info.IsDir() {
		entry.Type = model.EntryTypeDirectory
		return entry
	}

	entry.Type = model.EntryTypeFile
	entry.Size = info.Size()
	entry.Extension = strings.ToLower(filepath.Ext(info.Name()))
	return entry
}

func joinRel(parent string, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
