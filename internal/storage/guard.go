package storage

import (
	"path"
	"strings"

	"go-file-tree/internal/model"
)

// TrashDirName is the reserved directory under each principal root that
// holds soft-deleted items.
const TrashDirName = ".trash"

// Guard decides whether a logical path lies inside a principal's root. It
// does no I/O and is safe for concurrent use.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Authorize returns the cleaned Root-relative path for logicalPath when it is
// the principal root or lies beneath it. Segments are compared without regard
// to case, but the returned path always carries the principal root's own
// spelling so a differently cased prefix cannot address a sibling tree.
// An empty logicalPath authorizes the principal root itself.
func (g *Guard) Authorize(principal model.Principal, logicalPath string) (string, bool) {
	if !principal.Active {
		return "", false
	}

	rootSegments, ok := guardSegments(principal.RootPath)
	if !ok || len(rootSegments) == 0 {
		return "", false
	}

	if strings.TrimSpace(logicalPath) == "" {
		return strings.Join(rootSegments, "/"), true
	}

	candidateSegments, ok := guardSegments(logicalPath)
	if !ok || len(candidateSegments) < len(rootSegments) {
		return "", false
	}

	for i, segment := range rootSegments {
		if !strings.EqualFold(segment, candidateSegments[i]) {
			return "", false
		}
	}

	resolved := append(append([]string{}, rootSegments...), candidateSegments[len(rootSegments):]...)
	return strings.Join(resolved, "/"), true
}

// IsReserved reports whether p addresses the trash directory or anything
// inside it.
func (g *Guard) IsReserved(p string) bool {
	segments, ok := guardSegments(p)
	if !ok {
		return false
	}

	for _, segment := range segments {
		if strings.EqualFold(segment, TrashDirName) {
			return true
		}
	}
	return false
}

// TrashRoot is the Root-relative trash directory of a principal.
func TrashRoot(principal model.Principal) string {
	return path.Join(CleanRelative(principal.RootPath), TrashDirName)
}

func guardSegments(raw string) ([]string, bool) {
	if hasControlCharacters(raw) {
		return nil, false
	}

	normalized := strings.TrimLeft(normalizeSeparators(raw), "/")
	if normalized == "" {
		return nil, true
	}

	cleaned := path.Clean(normalized)
	if cleaned == "." {
		return nil, true
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, false
	}

	return strings.Split(cleaned, "/"), true
}
