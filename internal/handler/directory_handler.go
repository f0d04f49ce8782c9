package handler

import (
	"net/http"

	"go-file-tree/internal/model"
	"go-file-tree/internal/service"
)

type DirectoryHandler struct {
	service *service.FileTreeService
}

func NewDirectoryHandler(service *service.FileTreeService) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	page := parseIntOrDefault(query.Get("page"), 1)
	limit := parseIntOrDefault(query.Get("limit"), service.DefaultPageSize)

	data, meta, err := h.service.ListDirectory(r.Context(), principal, query.Get("path"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data, &meta)
}

func (h *DirectoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.CreateDirectoryRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	data, err := h.service.CreateDirectory(r.Context(), principal, payload.Path, payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, data, nil)
}
