package model

import "errors"

var (
	// Principal related errors
	ErrPrincipalNotFound = errors.New("principal not found")

	// Token related errors
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenNotValid = errors.New("token not valid")

	// Trash related errors
	ErrTrashItemNotFound = errors.New("trash item not found")

	ErrJobNotFound = errors.New("job not found")
)
