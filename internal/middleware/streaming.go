package middleware

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// StreamingTimeout guards upload and download routes without buffering the
// response. The whole transfer is capped at maxDuration, and it is cancelled
// once neither the request body nor the response has moved for idleTimeout.
// Flush and Unwrap are preserved so Range responses and SSE keep streaming.
func StreamingTimeout(maxDuration, idleTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), maxDuration)
			defer cancel()

			rc := http.NewResponseController(w)
			deadline := time.Now().Add(maxDuration)
			_ = rc.SetWriteDeadline(deadline)
			_ = rc.SetReadDeadline(deadline)

			watch := &transferWatch{rc: rc, idle: idleTimeout, cancel: cancel}
			watch.touch()
			defer watch.stop()

			if r.Body != nil && r.Body != http.NoBody {
				r.Body = &watchedBody{ReadCloser: r.Body, watch: watch}
			}

			next.ServeHTTP(&watchedWriter{ResponseWriter: w, watch: watch}, r.WithContext(ctx))
		})
	}
}

// transferWatch cancels a transfer that has stopped making progress in
// either direction.
type transferWatch struct {
	rc     *http.ResponseController
	idle   time.Duration
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *transferWatch) touch() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Reset(t.idle)
		return
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
}

func (t *transferWatch) expire() {
	now := time.Now()
	_ = t.rc.SetReadDeadline(now)
	_ = t.rc.SetWriteDeadline(now)
	t.cancel()
}

func (t *transferWatch) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

type watchedBody struct {
	io.ReadCloser
	watch *transferWatch
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.watch.touch()
	}
	return n, err
}

type watchedWriter struct {
	http.ResponseWriter
	watch *transferWatch
}

func (w *watchedWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	if n > 0 {
		w.watch.touch()
	}
	return n, err
}

func (w *watchedWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *watchedWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
