package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

// Timeout bounds buffered JSON routes. On expiry the client receives the
// usual error envelope with REQUEST_TIMEOUT and a 503 status.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.Failure(apierror.CodeRequestTimeout, "request timed out", ""))

	return func(next http.Handler) http.Handler {
		guarded := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// TimeoutHandler copies handler headers over on success, so this
			// only survives on the timeout path.
			w.Header().Set("Content-Type", "application/json")
			guarded.ServeHTTP(w, r)
		})
	}
}
