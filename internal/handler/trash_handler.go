package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-file-tree/internal/service"
	"go-file-tree/pkg/apierror"
)

type TrashHandler struct {
	service *service.FileTreeService
}

func NewTrashHandler(service *service.FileTreeService) *TrashHandler {
	return &TrashHandler{service: service}
}

func (h *TrashHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page := parseIntOrDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntOrDefault(r.URL.Query().Get("limit"), service.DefaultPageSize)

	records, meta, err := h.service.ListTrash(r.Context(), principal, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, records, &meta)
}

func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := trashID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.service.RestoreTrash(r.Context(), principal, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, record, nil)
}

func (h *TrashHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := trashID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.PermanentlyDeleteTrash(r.Context(), principal, id); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"id": id}, nil)
}

func trashID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", apierror.InvalidArgument("trash id is required", "id")
	}
	return id, nil
}
