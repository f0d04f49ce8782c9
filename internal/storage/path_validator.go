package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"go-file-tree/pkg/apierror"
)

// PathValidator maps Root-relative client paths onto absolute host paths
// and refuses anything that would land outside the storage root.
type PathValidator struct {
	rootAbs string
}

func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	return &PathValidator{rootAbs: rootAbs}, nil
}

func (v *PathValidator) RootAbs() string {
	return v.rootAbs
}

func (v *PathValidator) ResolvePath(clientPath string) (string, error) {
	normalized := normalizeSeparators(clientPath)
	if normalized == "" || normalized == "/" {
		return v.rootAbs, nil
	}

	if hasControlCharacters(normalized) {
		return "", apierror.InvalidArgument("path contains invalid characters", clientPath)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", apierror.Unauthorized(clientPath)
		}
	}

	cleanRel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(normalized, "/")))
	if cleanRel == "." {
		return v.rootAbs, nil
	}

	resolvedAbs, err := filepath.Abs(filepath.Join(v.rootAbs, cleanRel))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	if !isWithinRoot(v.rootAbs, resolvedAbs) {
		return "", apierror.Unauthorized(clientPath)
	}

	return resolvedAbs, nil
}

// CleanRelative normalizes a client path to the canonical Root-relative
// form: forward slashes, no leading slash, lexically cleaned.
func CleanRelative(clientPath string) string {
	normalized := strings.TrimPrefix(normalizeSeparators(clientPath), "/")
	if normalized == "" {
		return ""
	}

	cleaned := path.Clean(normalized)
	if cleaned == "." {
		return ""
	}

	return strings.TrimPrefix(cleaned, "/")
}

func normalizeSeparators(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
}

func hasControlCharacters(value string) bool {
	for _, char := range value {
		if char == 0 || unicode.IsControl(char) {
			return true
		}
	}

	return false
}

func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if runtime.GOOS == "windows" {
		rootAbs = strings.ToLower(rootAbs)
		candidateAbs = strings.ToLower(candidateAbs)
	}

	if candidateAbs == rootAbs {
		return true
	}

	rootWithSeparator := rootAbs
	if !strings.HasSuffix(rootWithSeparator, string(filepath.Separator)) {
		rootWithSeparator += string(filepath.Separator)
	}
	return strings.HasPrefix(candidateAbs, rootWithSeparator)
}
