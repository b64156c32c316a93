package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeCredentials indicates malformed or missing credential input;
	// the user can correct it by resubmitting.
	ErrCodeCredentials ErrorCode = "credentials"
	// ErrCodeAuthentication indicates a backend rejected the identity or
	// secret. Retryable against fallback backends.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeACL indicates the identity is valid but not authorized for
	// this application.
	ErrCodeACL ErrorCode = "acl"
	// ErrCodeOTP indicates a second-factor dispatch or configuration
	// failure. Fatal for the current attempt.
	ErrCodeOTP ErrorCode = "otp"
	// ErrCodeOTPRetryExhausted indicates the OTP retry budget is spent;
	// the caller must restart primary authentication.
	ErrCodeOTPRetryExhausted ErrorCode = "otp_retry_exhausted"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message,
// and optional cause. It supports errors.Is and errors.As via Unwrap.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Credentials creates a new Credentials error.
func Credentials(message string) *AppError {
	return &AppError{Code: ErrCodeCredentials, Message: message}
}

// Credentialsf creates a new Credentials error with formatted message.
func Credentialsf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeCredentials, Message: fmt.Sprintf(format, args...)}
}

// Authentication creates a new Authentication error.
func Authentication(message string) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message}
}

// Authenticationf creates a new Authentication error with formatted message.
func Authenticationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: fmt.Sprintf(format, args...)}
}

// ACL creates a new ACL error.
func ACL(message string) *AppError {
	return &AppError{Code: ErrCodeACL, Message: message}
}

// ACLf creates a new ACL error with formatted message.
func ACLf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeACL, Message: fmt.Sprintf(format, args...)}
}

// OTP creates a new OTP error.
func OTP(message string) *AppError {
	return &AppError{Code: ErrCodeOTP, Message: message}
}

// OTPf creates a new OTP error with formatted message.
func OTPf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeOTP, Message: fmt.Sprintf(format, args...)}
}

// OTPRetryExhausted creates a new OTPRetryExhausted error.
func OTPRetryExhausted(message string) *AppError {
	return &AppError{Code: ErrCodeOTPRetryExhausted, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsCredentials checks if an error is a Credentials error.
func IsCredentials(err error) bool {
	return isCode(err, ErrCodeCredentials)
}

// IsAuthentication checks if an error is an Authentication error.
func IsAuthentication(err error) bool {
	return isCode(err, ErrCodeAuthentication)
}

// IsACL checks if an error is an ACL error.
func IsACL(err error) bool {
	return isCode(err, ErrCodeACL)
}

// IsOTP checks if an error is an OTP error.
func IsOTP(err error) bool {
	return isCode(err, ErrCodeOTP)
}

// IsOTPRetryExhausted checks if an error is an OTPRetryExhausted error.
func IsOTPRetryExhausted(err error) bool {
	return isCode(err, ErrCodeOTPRetryExhausted)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsBackendFailure reports whether an error is one of the kinds the
// fallback orchestrator swallows before trying the next backend:
// authentication rejections, ACL denials, and backend I/O failures.
func IsBackendFailure(err error) bool {
	return IsAuthentication(err) || IsACL(err) || IsInternal(err) ||
		isCode(err, ErrCodeTimeout) || isCode(err, ErrCodeNotFound)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if unset.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
