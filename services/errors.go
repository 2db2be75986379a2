package services

import "errors"

// Errors shared across services and the HTTP error mapping.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email address is already in use")

	// ErrTokenInvalid covers unknown or already consumed single-use tokens.
	ErrTokenInvalid = errors.New("token is invalid or already used")
	// ErrTokenExpired marks tokens past their expiry, reported as 410 Gone.
	ErrTokenExpired = errors.New("token has expired")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
	ErrUserBanned           = errors.New("account is banned")
)
