package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go-file-tree/internal/model"
	"go-file-tree/internal/service"
	"go-file-tree/pkg/apierror"
)

type FileHandler struct {
	service       *service.FileTreeService
	maxUploadSize int64
}

func NewFileHandler(service *service.FileTreeService, maxUploadSize int64) *FileHandler {
	return &FileHandler{service: service, maxUploadSize: maxUploadSize}
}

// Upload streams every "files" part of a multipart body into the directory
// named by the "path" field or query parameter. Per-file failures are
// reported alongside the successful uploads.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, apierror.InvalidArgument("invalid multipart body", ""))
		return
	}

	destination := strings.TrimSpace(r.URL.Query().Get("path"))
	overwrite := parseBool(r.URL.Query().Get("overwrite"))
	result := model.UploadResponse{Uploaded: []model.UploadItem{}, Failed: []model.UploadFailure{}}

	for {
		part, nextErr := reader.NextPart()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			if isPayloadTooLarge(nextErr) {
				writeError(w, payloadTooLarge())
				return
			}
			writeError(w, apierror.InvalidArgument("invalid multipart stream", nextErr.Error()))
			return
		}

		switch part.FormName() {
		case "path":
			if value := readField(part); value != "" {
				destination = value
			}
			continue
		case "overwrite":
			overwrite = parseBool(readField(part))
			continue
		}

		if part.FormName() != "files" || strings.TrimSpace(part.FileName()) == "" {
			_ = part.Close()
			continue
		}

		uploaded, uploadErr := h.service.Upload(r.Context(), principal, destination, part.FileName(), part, overwrite)
		_ = part.Close()
		if uploadErr != nil {
			if isPayloadTooLarge(uploadErr) {
				writeError(w, payloadTooLarge())
				return
			}
			result.Failed = append(result.Failed, model.UploadFailure{Name: part.FileName(), Reason: uploadFailureReason(uploadErr)})
			continue
		}

		result.Uploaded = append(result.Uploaded, uploaded)
	}

	status := http.StatusOK
	if len(result.Uploaded) > 0 {
		status = http.StatusCreated
	}
	writeSuccess(w, status, result, nil)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requestedPath, err := requiredQuery(r, "path")
	if err != nil {
		writeError(w, err)
		return
	}

	file, entry, contentType, err := h.service.Download(r.Context(), principal, requestedPath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": entry.Name}))
	http.ServeContent(w, r, entry.Name, entry.ModifiedAt, file)
}

// Range returns a byte window of a file selected by the offset and length
// query parameters. A missing length reads to the end of the file.
func (h *FileHandler) Range(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requestedPath, err := requiredQuery(r, "path")
	if err != nil {
		writeError(w, err)
		return
	}

	offset, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("offset")), 10, 64)
	if err != nil {
		writeError(w, apierror.InvalidArgument("'offset' must be an integer", "offset"))
		return
	}
	length := int64(-1)
	if raw := strings.TrimSpace(r.URL.Query().Get("length")); raw != "" {
		length, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || length < 0 {
			writeError(w, apierror.InvalidArgument("'length' must be a non-negative integer", "length"))
			return
		}
	}

	reader, err := h.service.ReadRange(r.Context(), principal, requestedPath, offset, length)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(requestedPath)}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.DeleteRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.service.Delete(r.Context(), principal, payload.Path, payload.Permanent)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.DeleteResponse{Path: payload.Path, Permanent: payload.Permanent, Trash: record}, nil)
}

// Move runs a batch move synchronously. Large batches should go through the
// jobs endpoint instead.
func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.MoveBatchRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.service.MoveBatch(r.Context(), principal, payload, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, report, nil)
}

func (h *FileHandler) Checksum(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requestedPath, err := requiredQuery(r, "path")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Checksum(r.Context(), principal, requestedPath)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func readField(part io.ReadCloser) string {
	defer part.Close()
	value, _ := io.ReadAll(io.LimitReader(part, 4096))
	return strings.TrimSpace(string(value))
}

func isPayloadTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

func payloadTooLarge() error {
	return apierror.New("PAYLOAD_TOO_LARGE", "request body exceeds MAX_UPLOAD_SIZE", "MAX_UPLOAD_SIZE", http.StatusRequestEntityTooLarge)
}

func uploadFailureReason(err error) string {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "upload failed"
}
