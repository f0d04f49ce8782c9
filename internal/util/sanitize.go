package util

import (
	"strings"
	"unicode"

	"go-file-tree/pkg/apierror"
)

const (
	// trashDirName mirrors storage.TrashDirName; names equal to it are refused.
	trashDirName   = ".trash"
	maxSegmentRune = 255
)

// SanitizeFilename turns a client supplied name into a single safe path
// segment. Control and format characters are dropped, separators and
// shell-hostile punctuation become "_", and the result is capped at 255 runes.
func SanitizeFilename(name string, allowHidden bool) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apierror.InvalidArgument("filename cannot be empty", "")
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", apierror.InvalidArgument("filename contains null bytes", trimmed)
	}

	cleaned := strings.TrimSpace(strings.Map(segmentRune, trimmed))
	if cleaned == "" {
		return "", apierror.InvalidArgument("filename is invalid after sanitization", trimmed)
	}
	if runes := []rune(cleaned); len(runes) > maxSegmentRune {
		cleaned = string(runes[:maxSegmentRune])
	}

	switch {
	case cleaned == "." || cleaned == "..":
		return "", apierror.InvalidArgument("filename cannot be current or parent directory", cleaned)
	case strings.EqualFold(cleaned, trashDirName):
		return "", apierror.InvalidArgument("filename is reserved", cleaned)
	case strings.HasPrefix(cleaned, ".") && !allowHidden:
		return "", apierror.InvalidArgument("hidden filenames are not allowed", cleaned)
	case isDeviceName(cleaned):
		return "", apierror.InvalidArgument("reserved filename is not allowed", cleaned)
	}

	return cleaned, nil
}

// segmentRune is the strings.Map callback: -1 drops the rune.
func segmentRune(r rune) rune {
	if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
		return -1
	}
	if strings.ContainsRune(`<>:"/\|?*`, r) {
		return '_'
	}
	return r
}

// isDeviceName reports whether the stem before the first dot is one of the
// DOS device names, which stay unusable on Windows mounts whatever the
// extension.
func isDeviceName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	stem = strings.ToUpper(stem)

	switch stem {
	case "CON", "PRN", "AUX", "NUL":
		return true
	}
	if len(stem) == 4 && (strings.HasPrefix(stem, "COM") || strings.HasPrefix(stem, "LPT")) {
		return stem[3] >= '1' && stem[3] <= '9'
	}
	return false
}
