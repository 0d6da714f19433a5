package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrExpired            = errors.New("token expired")
	ErrInvalidToken       = errors.New("token invalid")
	ErrInvalidSignature   = errors.New("token signature invalid")
	ErrMalformed          = errors.New("token is malformed")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountPending     = errors.New("account is pending approval")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("account already exists")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError reports malformed input for one field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
