package handler

import (
	"fmt"
	"net/http"

	"go-file-tree/internal/service"
)

type UsageHandler struct {
	service *service.FileTreeService
}

func NewUsageHandler(service *service.FileTreeService) *UsageHandler {
	return &UsageHandler{service: service}
}

type usageResponse struct {
	Files           int    `json:"files"`
	Directories     int    `json:"directories"`
	Bytes           int64  `json:"bytes"`
	BytesHuman      string `json:"bytes_human"`
	TrashItems      int    `json:"trash_items"`
	TrashBytes      int64  `json:"trash_bytes"`
	TrashBytesHuman string `json:"trash_bytes_human"`
}

func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	usage, err := h.service.Usage(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, usageResponse{
		Files:           usage.Files,
		Directories:     usage.Directories,
		Bytes:           usage.Bytes,
		BytesHuman:      humanizeBytes(usage.Bytes),
		TrashItems:      usage.TrashItems,
		TrashBytes:      usage.TrashBytes,
		TrashBytesHuman: humanizeBytes(usage.TrashBytes),
	}, nil)
}

func humanizeBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
