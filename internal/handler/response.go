package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := model.Failure(apierror.CodeInternal, "Unexpected server error", "")

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body = model.Failure(apiErr.Code, apiErr.Message, apiErr.Details)
		if apiErr.Code == apierror.CodeIOError {
			slog.Error("storage failure", "error", err)
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body = model.Failure(apierror.CodeRequestTimeout, "request timed out", "")
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
		body = model.Failure(apierror.CodeCancelled, "request cancelled", "")
	default:
		slog.Error("unhandled error in writeError", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
