package util

import (
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// DetectContentType sniffs the content type of an open file and rewinds it.
// Empty or unreadable files fall back to application/octet-stream.
func DetectContentType(file *os.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	mtype, err := mimetype.DetectReader(file)
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", seekErr
	}
	if err != nil || mtype == nil {
		return defaultContentType, nil
	}

	return mtype.String(), nil
}
