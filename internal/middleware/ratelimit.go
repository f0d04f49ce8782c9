package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-file-tree/pkg/apierror"
)

type clientLimiter struct {
	read     *rate.Limiter
	write    *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware throttles each client separately. Reads (GET, HEAD)
// and mutations draw from separate budgets so a burst of listing calls
// cannot starve uploads and moves. A non-positive readRPM disables read
// limiting.
type RateLimitMiddleware struct {
	readRPM  int
	writeRPM int
	mu       sync.Mutex
	clients  map[string]*clientLimiter
}

func NewRateLimitMiddleware(readRPM int, writeRPM int) *RateLimitMiddleware {
	if writeRPM <= 0 {
		writeRPM = 60
	}

	return &RateLimitMiddleware{
		readRPM:  readRPM,
		writeRPM: writeRPM,
		clients:  map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := m.getLimiter(m.clientKey(r))

		target := limiter.write
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			target = limiter.read
		}

		if target != nil && !target.Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, apierror.CodeRateLimited, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the authenticated principal and falls back to the
// client address.
func (m *RateLimitMiddleware) clientKey(r *http.Request) string {
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		return "principal:" + principal.ID
	}
	return "ip:" + extractClientIP(r)
}

func (m *RateLimitMiddleware) getLimiter(key string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[key]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	created := &clientLimiter{
		write:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.writeRPM)), m.writeRPM),
		lastSeen: time.Now(),
	}
	if m.readRPM > 0 {
		created.read = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.readRPM)), m.readRPM)
	}
	m.clients[key] = created
	m.gcLocked()

	return created
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, key)
		}
	}
}

func extractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
