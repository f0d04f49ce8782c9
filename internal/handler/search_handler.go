package handler

import (
	"net/http"
	"strings"

	"go-file-tree/internal/model"
	"go-file-tree/internal/service"
)

type SearchHandler struct {
	service *service.FileTreeService
}

func NewSearchHandler(service *service.FileTreeService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search filters the caller's tree. ext accepts a comma separated list;
// min_size and max_size are bytes; from and to are dates.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	values := r.URL.Query()
	query := model.SearchQuery{Query: strings.TrimSpace(values.Get("q"))}
	if ext := strings.TrimSpace(values.Get("ext")); ext != "" {
		query.Extensions = strings.Split(ext, ",")
	}

	if query.MinSize, err = parseOptionalInt64(r, "min_size"); err != nil {
		writeError(w, err)
		return
	}
	if query.MaxSize, err = parseOptionalInt64(r, "max_size"); err != nil {
		writeError(w, err)
		return
	}
	if query.From, err = parseOptionalDate(r, "from"); err != nil {
		writeError(w, err)
		return
	}
	if query.To, err = parseOptionalDate(r, "to"); err != nil {
		writeError(w, err)
		return
	}

	page := parseIntOrDefault(values.Get("page"), 1)
	limit := parseIntOrDefault(values.Get("limit"), service.DefaultPageSize)

	data, meta, err := h.service.Search(r.Context(), principal, query, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data, &meta)
}
