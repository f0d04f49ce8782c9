package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"go-file-tree/internal/middleware"
	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

var validate = validator.New()

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierror.InvalidArgument("invalid JSON body", "")
	}

	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError reports the first failing field.
func validationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return apierror.InvalidArgument(fmt.Sprintf("validation failed on '%s'", e.Tag()), strings.ToLower(e.Field()))
	}
	return apierror.InvalidArgument("invalid request", "")
}

func principalFromRequest(r *http.Request) (model.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return model.Principal{}, apierror.Unauthenticated("authentication required")
	}
	return principal, nil
}

func requiredQuery(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return "", apierror.InvalidArgument(fmt.Sprintf("query parameter '%s' is required", name), name)
	}
	return value, nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func parseOptionalInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apierror.InvalidArgument(fmt.Sprintf("'%s' must be an integer", name), name)
	}
	return &v, nil
}

// parseOptionalDate accepts a calendar date or an RFC 3339 timestamp.
func parseOptionalDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}

	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, nil
		}
	}
	return nil, apierror.InvalidArgument(fmt.Sprintf("'%s' must be YYYY-MM-DD or RFC 3339", name), name)
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
