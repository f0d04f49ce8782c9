package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go-file-tree/internal/metrics"
	"go-file-tree/internal/model"
)

const (
	requestIDHeader = "X-Request-ID"
	errorBodyLimit  = 4096
)

// Logging tags every request with an X-Request-ID, writes one access log
// line per request and feeds the HTTP metrics. recorder may be nil.
//
// Error responses have their envelope decoded so the code and message land
// in the log line next to the status.
func Logging(recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			started := time.Now()
			tracked := &trackedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tracked, r)
			elapsed := time.Since(started)

			recorder.ObserveHTTP(r.Method, tracked.status, elapsed)
			slog.LogAttrs(r.Context(), accessLevel(tracked.status), "request", tracked.attrs(r, requestID, elapsed)...)
		})
	}
}

func accessLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// trackedWriter records the status, the bytes sent and, for error
// statuses, the head of the body.
type trackedWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
	errBody     bytes.Buffer
}

func (tw *trackedWriter) attrs(r *http.Request, requestID string, elapsed time.Duration) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", tw.status),
		slog.Int64("bytes", tw.written),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("client_ip", extractClientIP(r)),
	}
	if tw.status < http.StatusBadRequest {
		return attrs
	}

	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}

	var envelope model.APIResponse
	if json.Unmarshal(tw.errBody.Bytes(), &envelope) == nil && envelope.Error != nil {
		attrs = append(attrs,
			slog.String("error_code", envelope.Error.Code),
			slog.String("error_message", envelope.Error.Message),
		)
		if envelope.Error.Details != "" {
			attrs = append(attrs, slog.String("error_details", envelope.Error.Details))
		}
	}
	return attrs
}

func (tw *trackedWriter) WriteHeader(statusCode int) {
	if tw.wroteHeader {
		return
	}
	tw.status = statusCode
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(statusCode)
}

func (tw *trackedWriter) Write(b []byte) (int, error) {
	if tw.status >= http.StatusBadRequest && tw.errBody.Len() < errorBodyLimit {
		tw.errBody.Write(b)
	}
	n, err := tw.ResponseWriter.Write(b)
	tw.written += int64(n)
	return n, err
}

func (tw *trackedWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (tw *trackedWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

func (tw *trackedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := tw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
