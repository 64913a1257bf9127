package tutorauth

import (
	"errors"
	"net/http"
	"strings"
)

// Error kinds surfaced by the session lifecycle. Messages are stable and safe
// to show to clients.
var (
	ErrDuplicateEmail        = errors.New("User with this email already exists")
	ErrDuplicateExternalID   = errors.New("external identity already linked to another account")
	ErrInvalidCredentials    = errors.New("Invalid email or password")
	ErrExternalIdentityOnly  = errors.New("This account uses Google Sign-In. Please login with Google.")
	ErrEmailNotVerified      = errors.New("Please verify your email before logging in")
	ErrInvalidToken          = errors.New("Invalid token")
	ErrInvalidOrExpiredToken = errors.New("Invalid or expired verification token")
	ErrNotFound              = errors.New("User not found")
	ErrAlreadyVerified       = errors.New("Email is already verified")
	ErrExternalAuthFailed    = errors.New("Google authentication failed")
	ErrDevModeDisabled       = errors.New("Development-only operation is not available")
	ErrPasswordAlreadySet    = errors.New("A password is already set for this account")
	ErrValidation            = errors.New("validation failed")
)

// Error codes returned in API responses
const (
	ErrCodeDuplicateEmail        = "duplicate_email"
	ErrCodeInvalidCreds          = "invalid_credentials"
	ErrCodeExternalIdentityOnly  = "external_identity_only"
	ErrCodeEmailNotVerified      = "email_not_verified"
	ErrCodeInvalidToken          = "invalid_token"
	ErrCodeInvalidOrExpiredToken = "invalid_or_expired_token"
	ErrCodeNotFound              = "not_found"
	ErrCodeAlreadyVerified       = "already_verified"
	ErrCodeExternalAuthFailed    = "external_auth_failed"
	ErrCodeDevModeDisabled       = "dev_mode_disabled"
	ErrCodePasswordAlreadySet    = "password_already_set"
	ErrCodeValidation            = "validation_error"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeInternal              = "internal_error"
)

// ValidationError reports input that failed shape or password policy checks.
// It is raised before any mutation happens.
type ValidationError struct {
	Field   string
	Message string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Reasons) > 0 {
		return e.Field + ": " + strings.Join(e.Reasons, ", ")
	}
	return "invalid " + e.Field
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field, message string, reasons ...string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Reasons: reasons}
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{ErrDuplicateEmail, ErrCodeDuplicateEmail, http.StatusConflict},
	{ErrInvalidCredentials, ErrCodeInvalidCreds, http.StatusUnauthorized},
	{ErrExternalIdentityOnly, ErrCodeExternalIdentityOnly, http.StatusUnauthorized},
	{ErrEmailNotVerified, ErrCodeEmailNotVerified, http.StatusForbidden},
	{ErrInvalidToken, ErrCodeInvalidToken, http.StatusUnauthorized},
	{ErrInvalidOrExpiredToken, ErrCodeInvalidOrExpiredToken, http.StatusBadRequest},
	{ErrNotFound, ErrCodeNotFound, http.StatusNotFound},
	{ErrAlreadyVerified, ErrCodeAlreadyVerified, http.StatusBadRequest},
	{ErrExternalAuthFailed, ErrCodeExternalAuthFailed, http.StatusUnauthorized},
	{ErrDevModeDisabled, ErrCodeDevModeDisabled, http.StatusForbidden},
	{ErrPasswordAlreadySet, ErrCodePasswordAlreadySet, http.StatusConflict},
	{ErrValidation, ErrCodeValidation, http.StatusBadRequest},
}

// ErrorCode maps an error to its stable API code
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error to the HTTP status used by the API
func HTTPStatus(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show for err. Unknown errors
// collapse to a generic message.
func PublicMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.err.Error()
		}
	}
	return "Internal server error"
}
