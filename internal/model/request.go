package model

import "time"

type CreateDirectoryRequest struct {
	Path string `json:"path"`
	Name string `json:"name" validate:"required"`
}

type DeleteRequest struct {
	Path      string `json:"path" validate:"required"`
	Permanent bool   `json:"permanent"`
}

type MoveBatchRequest struct {
	Items       []string `json:"items" validate:"required,min=1,dive,required"`
	Destination string   `json:"destination" validate:"required"`
	Overwrite   bool     `json:"overwrite"`
}

type MoveItemResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Success     bool   `json:"success"`
	Bytes       int64  `json:"bytes"`
	Reason      string `json:"reason,omitempty"`
}

type MoveBatchReport struct {
	Items        []MoveItemResult `json:"items"`
	Total        int              `json:"total"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	BytesPlanned int64            `json:"bytes_planned"`
	BytesMoved   int64            `json:"bytes_moved"`
}

// SearchQuery holds the optional search filters. Zero values mean "no bound".
type SearchQuery struct {
	Query      string
	Extensions []string
	MinSize    *int64
	MaxSize    *int64
	From       *time.Time
	To         *time.Time
}
