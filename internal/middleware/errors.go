package middleware

import (
	"encoding/json"
	"net/http"

	"go-file-tree/internal/model"
)

// writeError sends the standard error envelope from middleware that runs
// before any handler has written a response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.Failure(code, message, ""))
}
