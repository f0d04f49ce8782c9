package model

import "time"

// TrashRecord tracks a soft-deleted file or directory. Both paths are
// relative to the storage root; TrashPath lives under the owner's .trash.
type TrashRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	OriginalPath string    `json:"original_path"`
	TrashPath    string    `json:"trash_path"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	DeletedAt    time.Time `json:"deleted_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (r TrashRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
