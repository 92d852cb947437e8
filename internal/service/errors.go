package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/mediagallery/gallery-api/internal/repository"
)

// ErrorKind classifies a failure for transport mapping.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindConflict        ErrorKind = "CONFLICT"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindInvalidToken    ErrorKind = "INVALID_TOKEN"
	KindExpired         ErrorKind = "EXPIRED"
	KindInvalidOTP      ErrorKind = "INVALID_OTP"
	KindUnauthenticated ErrorKind = "UNAUTHENTICATED"
	KindForbidden       ErrorKind = "FORBIDDEN"
	KindDeliveryFailed  ErrorKind = "DELIVERY_FAILED"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindUnexpected      ErrorKind = "INTERNAL"
)

// Error is a classified failure whose Message is safe to return to clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func NewValidationError(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

var (
	ErrEmailTaken               = newError(KindConflict, "User with this email already exists.")
	ErrAlreadyVerified          = newError(KindConflict, "Email is already verified.")
	ErrEmailInUse               = newError(KindConflict, "Email is already taken.")
	ErrUserNotFound             = newError(KindNotFound, "User not found.")
	ErrContactNotFound          = newError(KindNotFound, "Contact message not found.")
	ErrMediaNotFound            = newError(KindNotFound, "Media not found.")
	ErrResourceNotFound         = newError(KindNotFound, "Resource not found.")
	ErrInvalidVerificationToken = newError(KindInvalidToken, "Invalid verification token.")
	ErrInvalidResetToken        = newError(KindInvalidToken, "Invalid reset token.")
	ErrVerificationExpired      = newError(KindExpired, "Verification token has expired.")
	ErrResetExpired             = newError(KindExpired, "Reset token has expired.")
	ErrInvalidOTP               = newError(KindInvalidOTP, "Invalid OTP.")
	ErrInvalidCredentials       = newError(KindUnauthenticated, "Invalid email or password.")
	ErrAccountInactive          = newError(KindUnauthenticated, "Account has been deactivated. Please contact support.")
	ErrEmailNotVerified         = newError(KindUnauthenticated, "Please verify your email address first.")
	ErrMissingSession           = newError(KindUnauthenticated, "Access denied. No token provided.")
	ErrInvalidSession           = newError(KindUnauthenticated, "Invalid token or user account deactivated.")
	ErrFederatedRejected        = newError(KindUnauthenticated, "Google login failed. Invalid identity token.")
	ErrInvalidOAuthState        = newError(KindUnauthenticated, "Invalid OAuth state.")
	ErrGoogleAuthDisabled       = newError(KindForbidden, "Google login is not enabled.")
	ErrAdminRequired            = newError(KindForbidden, "Access denied. Admin privileges required.")
	ErrVerifiedRequired         = newError(KindForbidden, "Please verify your email address first.")
	ErrNotOwner                 = newError(KindForbidden, "Access denied. You can only modify your own resources.")
	ErrMediaPrivate             = newError(KindForbidden, "Access denied. This media is private.")
	ErrNotMessageOwner          = newError(KindForbidden, "Access denied. You can only access your own messages.")
	ErrResetDeliveryFailed      = newError(KindDeliveryFailed, "Failed to send reset email. Please try again.")
	ErrVerifyDeliveryFailed     = newError(KindDeliveryFailed, "Failed to send verification email. Please try again.")
	ErrCannotDeleteSelf         = newError(KindValidation, "You cannot delete your own account.")
	ErrContactNotEditable       = newError(KindValidation, "Only pending messages can be edited.")
)

// ThrottledError reports an abuse-guard cooldown.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return "Too many attempts. Please try again later."
}

// KindOf maps any error returned from this package to its kind. Unclassified
// errors, including datastore failures, are KindUnexpected.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return KindRateLimited
	}
	return KindUnexpected
}

// translateRepoError replaces repository sentinels with their client-facing
// equivalents and leaves other errors untouched.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrEmailTaken):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrGoogleIDTaken):
		return ErrFederatedRejected
	case errors.Is(err, repository.ErrContactNotFound):
		return ErrContactNotFound
	case errors.Is(err, repository.ErrMediaNotFound):
		return ErrMediaNotFound
	default:
		return err
	}
}
