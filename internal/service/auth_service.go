package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

const accessTokenType = "access"

// PrincipalStore looks principals up by id.
type PrincipalStore interface {
	FindByID(ctx context.Context, id string) (model.Principal, error)
}

// AuthService turns bearer tokens into principals. Tokens are HS256 JWTs
// whose subject is the principal id.
type AuthService struct {
	principals PrincipalStore
	jwtSecret  []byte
	accessTTL  time.Duration
	now        func() time.Time
}

func NewAuthService(principals PrincipalStore, jwtSecret string, accessTTL time.Duration) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &AuthService{
		principals: principals,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		now:        time.Now,
	}, nil
}

// ResolvePrincipal validates tokenString and returns the active principal it
// names.
func (s *AuthService) ResolvePrincipal(ctx context.Context, tokenString string) (model.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return model.Principal{}, err
	}

	principal, err := s.principals.FindByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrPrincipalNotFound) {
		return model.Principal{}, apierror.Unauthenticated("unknown principal")
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if !principal.Active {
		return model.Principal{}, apierror.New(apierror.CodeUnauthorized, "principal is inactive", principal.ID, http.StatusForbidden)
	}

	return principal, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthenticated("invalid token signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, apierror.Unauthenticated(model.ErrTokenExpired.Error())
	}
	if err != nil || !parsed.Valid {
		return nil, apierror.Unauthenticated(model.ErrTokenNotValid.Error())
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.Unauthenticated("invalid token claims")
	}

	typ, _ := claimsMap["typ"].(string)
	if typ != accessTokenType {
		return nil, apierror.Unauthenticated("invalid token type")
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.Unauthenticated("invalid token subject")
	}

	return claims, nil
}

// IssueAccessToken signs an access token for principalID. It is used by
// operators and tests; this service has no login flow.
func (s *AuthService) IssueAccessToken(principalID string) (string, time.Time, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", time.Time{}, apierror.InvalidArgument("principal id cannot be empty", "")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": principalID,
		"typ": accessTokenType,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}
