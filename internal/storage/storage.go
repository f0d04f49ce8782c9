package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go-file-tree/pkg/apierror"
)

// Storage is the Root of the shared store. All other components address
// files through it with Root-relative paths.
type Storage struct {
	validator *PathValidator
}

func New(root string) (*Storage, error) {
	validator, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(validator.RootAbs(), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Storage{validator: validator}, nil
}

func (s *Storage) RootAbs() string {
	return s.validator.RootAbs()
}

func (s *Storage) Resolve(clientPath string) (string, error) {
	return s.validator.ResolvePath(clientPath)
}

func (s *Storage) MkdirAll(clientPath string, perm fs.FileMode) error {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(resolved, perm); err != nil {
		return fmt.Errorf("mkdir %q: %w", clientPath, err)
	}

	return nil
}

func (s *Storage) Stat(clientPath string) (fs.FileInfo, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, err
	}

	return os.Stat(resolved)
}

// Exists reports whether clientPath exists. Errors other than "not exist"
// are returned so callers do not mistake a permission problem for absence.
func (s *Storage) Exists(clientPath string) (bool, error) {
	_, err := s.Stat(clientPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// ReadDir lists clientPath sorted by name. Filesystem errors are returned
// unwrapped so callers can decide whether to skip the directory.
func (s *Storage) ReadDir(clientPath string) ([]fs.DirEntry, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, err
	}

	return os.ReadDir(resolved)
}

// OpenForRead opens clientPath read-only. A missing file is reported as
// NOT_FOUND and other failures as IO_ERROR.
func (s *Storage) OpenForRead(clientPath string) (*os.File, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apierror.NotFound("file not found", CleanRelative(clientPath))
		}
		return nil, apierror.IOError("failed to open file", err)
	}
	return file, nil
}
