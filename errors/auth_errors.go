package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AuthError is an already-built failure response of the auth layer.
// Callers must stop processing the request once they get one.
type AuthError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes used in response bodies.
const (
	Unauthorized    = "Unauthorized"
	Forbidden       = "Forbidden"
	TooManyRequests = "Too many requests"
	AccountLocked   = "Account locked"
	ServerError     = "Internal server error"
)

func NewUnauthenticated(message string) *AuthError {
	return &AuthError{
		Status:  http.StatusUnauthorized,
		Code:    Unauthorized,
		Message: message,
	}
}

func NewForbidden(message string) *AuthError {
	return &AuthError{
		Status:  http.StatusForbidden,
		Code:    Forbidden,
		Message: message,
	}
}

func NewRateLimited(message string) *AuthError {
	return &AuthError{
		Status:  http.StatusTooManyRequests,
		Code:    TooManyRequests,
		Message: message,
	}
}

func NewLocked(message string) *AuthError {
	return &AuthError{
		Status:  http.StatusLocked,
		Code:    AccountLocked,
		Message: message,
	}
}

// NewInternal never carries store details to the client.
func NewInternal() *AuthError {
	return &AuthError{
		Status: http.StatusInternalServerError,
		Code:   ServerError,
	}
}

// AsAuthError unwraps err into an *AuthError if it holds one.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 for anything that is not an AuthError.
func StatusOf(err error) int {
	if ae, ok := AsAuthError(err); ok {
		return ae.Status
	}
	return http.StatusInternalServerError
}
