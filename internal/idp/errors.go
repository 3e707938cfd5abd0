package idp

import "errors"

var (
	// ErrInvalidCredentials is returned when the email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailInUse is returned when sign-up targets an already-registered email.
	ErrEmailInUse = errors.New("email already in use")

	// ErrUserNotFound is returned by directory lookups that match no account.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountDisabled is returned when the account exists but is disabled.
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrTokenRevoked is returned when a refresh token was revoked (sign-out).
	ErrTokenRevoked = errors.New("refresh token has been revoked")

	// ErrTokenExpired is returned when a refresh token is past its expiry.
	ErrTokenExpired = errors.New("refresh token has expired")

	// ErrWeakPassword is returned when a sign-up password is too short.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
)
