package model

import "time"

const (
	EntryTypeFile      = "file"
	EntryTypeDirectory = "directory"
)

// TreeEntry describes one file or directory. RelativePath is relative to the
// storage root and always uses forward slashes.
type TreeEntry struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
	Extension    string    `json:"extension,omitempty"`
	RelativePath string    `json:"path"`
}

func (e TreeEntry) IsDir() bool {
	return e.Type == EntryTypeDirectory
}

type DirectoryListData struct {
	CurrentPath string      `json:"current_path"`
	ParentPath  string      `json:"parent_path"`
	Items       []TreeEntry `json:"items"`
}

type SearchData struct {
	Query string      `json:"query,omitempty"`
	Items []TreeEntry `json:"items"`
}

type DirectoryCreateData struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type UploadItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

type ChecksumResult struct {
	Path      string `json:"path"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
}

type UsageData struct {
	Files       int   `json:"files"`
	Directories int   `json:"directories"`
	Bytes       int64 `json:"bytes"`
	TrashItems  int   `json:"trash_items"`
	TrashBytes  int64 `json:"trash_bytes"`
}

type UploadFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type UploadResponse struct {
	Uploaded []UploadItem    `json:"uploaded"`
	Failed   []UploadFailure `json:"failed"`
}

// DeleteResponse carries the trash record for soft deletes; Trash is nil when
// the item was removed permanently.
type DeleteResponse struct {
	Path      string       `json:"path"`
	Permanent bool         `json:"permanent"`
	Trash     *TrashRecord `json:"trash,omitempty"`
}
