package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

type principalResolver interface {
	ResolvePrincipal(ctx context.Context, tokenString string) (model.Principal, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

type AuthMiddleware struct {
	resolver principalResolver
}

func NewAuthMiddleware(resolver principalResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// RequireAuth resolves the bearer token into a principal and stores it on the
// request context. Inactive principals are refused with 403.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeError(w, http.StatusUnauthorized, apierror.CodeUnauthenticated, "missing or invalid authorization header")
			return
		}

		principal, err := m.resolver.ResolvePrincipal(r.Context(), strings.TrimSpace(header[7:]))
		if err != nil {
			var apiErr *apierror.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusForbidden {
				writeError(w, http.StatusForbidden, apiErr.Code, apiErr.Message)
				return
			}
			if !errors.As(err, &apiErr) {
				writeError(w, http.StatusServiceUnavailable, apierror.CodeAuthUnavailable, "principal lookup failed")
				return
			}
			writeError(w, http.StatusUnauthorized, apierror.CodeUnauthenticated, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	return principal, ok
}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
