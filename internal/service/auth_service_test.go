package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

const testSecret = "test-secret-with-enough-entropy"

func newTestAuth(t *testing.T, principals *mockPrincipalStore) *AuthService {
	t.Helper()

	auth, err := NewAuthService(principals, testSecret, time.Minute)
	require.NoError(t, err)
	return auth
}

func TestAuthService_ResolvePrincipal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid token resolves the active principal", func(t *testing.T) {
		principals := &mockPrincipalStore{}
		principals.On("FindByID", ctx, "alice").Return(alice, nil)
		auth := newTestAuth(t, principals)

		token, expiresAt, err := auth.IssueAccessToken("alice")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

		principal, err := auth.ResolvePrincipal(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, alice, principal)
		principals.AssertExpectations(t)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		auth := newTestAuth(t, &mockPrincipalStore{})
		auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := auth.IssueAccessToken("alice")
		require.NoError(t, err)
		auth.now = time.Now

		_, err = auth.ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthenticated))
		assert.Contains(t, err.Error(), "token expired")
	})

	t.Run("wrong token type is rejected", func(t *testing.T) {
		auth := newTestAuth(t, &mockPrincipalStore{})
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"typ": "refresh",
			"exp": time.Now().Add(time.Minute).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = auth.ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthenticated))
		assert.Contains(t, err.Error(), "invalid token type")
	})

	t.Run("token without expiry is rejected", func(t *testing.T) {
		auth := newTestAuth(t, &mockPrincipalStore{})
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"typ": "access",
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = auth.ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthenticated))
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		other, err := NewAuthService(&mockPrincipalStore{}, "another-secret", time.Minute)
		require.NoError(t, err)
		token, _, err := other.IssueAccessToken("alice")
		require.NoError(t, err)

		_, err = newTestAuth(t, &mockPrincipalStore{}).ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthenticated))
	})

	t.Run("unknown principal is unauthenticated", func(t *testing.T) {
		principals := &mockPrincipalStore{}
		principals.On("FindByID", ctx, "ghost").Return(model.Principal{}, model.ErrPrincipalNotFound)
		auth := newTestAuth(t, principals)

		token, _, err := auth.IssueAccessToken("ghost")
		require.NoError(t, err)

		_, err = auth.ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthenticated))
	})

	t.Run("inactive principal is forbidden", func(t *testing.T) {
		inactive := bob
		inactive.Active = false
		principals := &mockPrincipalStore{}
		principals.On("FindByID", ctx, "bob").Return(inactive, nil)
		auth := newTestAuth(t, principals)

		token, _, err := auth.IssueAccessToken("bob")
		require.NoError(t, err)

		_, err = auth.ResolvePrincipal(ctx, token)
		require.True(t, apierror.Is(err, apierror.CodeUnauthorized))
	})

	t.Run("store failure is passed through", func(t *testing.T) {
		principals := &mockPrincipalStore{}
		principals.On("FindByID", ctx, "alice").Return(model.Principal{}, errors.New("connection refused"))
		auth := newTestAuth(t, principals)

		token, _, err := auth.IssueAccessToken("alice")
		require.NoError(t, err)

		_, err = auth.ResolvePrincipal(ctx, token)
		require.Error(t, err)
		assert.False(t, apierror.Is(err, apierror.CodeUnauthenticated))
	})
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewAuthService(&mockPrincipalStore{}, "  ", time.Minute)
	require.Error(t, err)
}
