package util

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := map[string]struct {
		content  []byte
		expected string
	}{
		"png":  {content: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), expected: "image/png"},
		"pdf":  {content: []byte("%PDF-1.7\n"), expected: "application/pdf"},
		"text": {content: []byte("plain words\n"), expected: "text/plain"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, tc.content, 0o644))

			file, err := os.Open(path)
			require.NoError(t, err)
			defer file.Close()

			contentType, err := DetectContentType(file)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(contentType, tc.expected), contentType)

			rest, err := io.ReadAll(file)
			require.NoError(t, err)
			require.Equal(t, len(tc.content), len(rest))
		})
	}
}
