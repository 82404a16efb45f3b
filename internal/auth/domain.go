// Package auth is the console's identity provider: credential sign-in,
// self-service sign-up and password changes.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account able to sign in.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SignUpInput carries a self-service registration.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

// Error codes carried by AuthError.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeInactive           = "inactive"
	CodeEmailTaken         = "email_taken"
	CodeWeakPassword       = "weak_password"
)

// AuthError is the failure surfaced by the identity provider. Message is
// safe to show to the user.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func invalidCredentials() *AuthError {
	return &AuthError{Code: CodeInvalidCredentials, Message: "Invalid email or password"}
}
