package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetCodes(t *testing.T) {
	tests := []struct {
		err   error
		code  ErrorCode
		check func(error) bool
	}{
		{Credentials("x"), ErrCodeCredentials, IsCredentials},
		{Authentication("x"), ErrCodeAuthentication, IsAuthentication},
		{ACL("x"), ErrCodeACL, IsACL},
		{OTP("x"), ErrCodeOTP, IsOTP},
		{OTPRetryExhausted("x"), ErrCodeOTPRetryExhausted, IsOTPRetryExhausted},
		{NotFound("x"), ErrCodeNotFound, IsNotFound},
		{Conflict("x"), ErrCodeConflict, IsConflict},
		{Validation("x"), ErrCodeValidation, IsValidation},
		{Internal("x"), ErrCodeInternal, IsInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(cause, ErrCodeInternal, "ldap user bind")

	assert.Equal(t, "ldap user bind: socket closed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsInternal(err))

	assert.Nil(t, Wrap(nil, ErrCodeInternal, "noop"))
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := Authentication("rejected")
	outer := fmt.Errorf("backend corp: %w", inner)

	assert.True(t, IsAuthentication(outer))
	assert.Equal(t, ErrCodeAuthentication, GetCode(outer))
}

func TestIsBackendFailure(t *testing.T) {
	swallowed := []error{
		Authentication("rejected"),
		ACL("denied"),
		Internal("ldap unreachable"),
		NotFound("no such repository"),
		&AppError{Code: ErrCodeTimeout, Message: "deadline"},
	}
	for _, err := range swallowed {
		assert.True(t, IsBackendFailure(err), "expected %v to be a backend failure", err)
	}

	terminal := []error{
		Credentials("missing login"),
		Validation("bad input"),
		OTP("dispatch failed"),
		OTPRetryExhausted("budget spent"),
		errors.New("plain error"),
	}
	for _, err := range terminal {
		assert.False(t, IsBackendFailure(err), "expected %v to be terminal", err)
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("login", "login is required")
	require.True(t, IsValidation(err))
	assert.Equal(t, "login", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}
