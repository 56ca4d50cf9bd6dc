package service

import "errors"

var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	msgEmailInUse         = "Email already in use"
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgInvalidAccess      = "Invalid or expired access token"
	msgPasswordTooLong    = "Password must be at most 72 bytes"
)

// AuthError is a caller-facing failure. Message is safe to return to clients.
type AuthError struct {
	Kind    error
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Kind }

func conflict(msg string) error { return &AuthError{Kind: ErrConflict, Message: msg} }

func unauthorized(msg string) error { return &AuthError{Kind: ErrUnauthorized, Message: msg} }

func invalidInput(msg string) error { return &AuthError{Kind: ErrInvalidInput, Message: msg} }
