package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-file-tree/internal/metrics"
	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

type stubResolver struct {
	principal model.Principal
	err       error
}

func (s stubResolver) ResolvePrincipal(_ context.Context, token string) (model.Principal, error) {
	if token != "good" {
		return model.Principal{}, apierror.Unauthenticated("token not valid")
	}
	return s.principal, s.err
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *model.APIError {
	t.Helper()

	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return body.Error
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	alice := model.Principal{ID: "alice", RootPath: "users/alice", Active: true}
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(principal.ID))
	})

	serve := func(resolver stubResolver, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		NewAuthMiddleware(resolver).RequireAuth(echo).ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token", func(t *testing.T) {
		rec := serve(stubResolver{principal: alice}, "Bearer good")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(stubResolver{principal: alice}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apierror.CodeUnauthenticated, decodeError(t, rec).Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := serve(stubResolver{principal: alice}, "Bearer bad")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("inactive principal", func(t *testing.T) {
		forbidden := apierror.New(apierror.CodeUnauthorized, "principal is inactive", "alice", http.StatusForbidden)
		rec := serve(stubResolver{err: forbidden}, "Bearer good")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, apierror.CodeUnauthorized, decodeError(t, rec).Code)
	})

	t.Run("store failure", func(t *testing.T) {
		rec := serve(stubResolver{err: errors.New("connection refused")}, "Bearer good")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, apierror.CodeAuthUnavailable, decodeError(t, rec).Code)
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	recorder := metrics.New()
	handler := Logging(recorder)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"X","message":"y"}}`))
	}))

	t.Run("generates a request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps a caller request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves flushing", func(t *testing.T) {
		flushing := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, ok := w.(http.Flusher)
			assert.True(t, ok)
		}))
		flushing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("panic becomes an error envelope", func(t *testing.T) {
		t.Parallel()

		handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, apierror.CodeInternal, decodeError(t, rec).Code)
	})

	t.Run("abort is re-raised", func(t *testing.T) {
		t.Parallel()

		handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		rec := httptest.NewRecorder()
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		})
		assert.Zero(t, rec.Body.Len())
	})
}
