package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrDuplicateUsername    = errors.New("username already exists")
	ErrProtectedRole        = errors.New("role is protected")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrNoSession            = errors.New("no active session")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrTooManyAttempts      = errors.New("too many login attempts")
)
