package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/guardgate/portal/internal/errors"
)

func TestRenderLearningForm(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderLearningForm(rec, slog.Default(), "intranet", "/portal/wf1", []LearningField{
		{Name: "pin", Label: "PIN code", Type: "password"},
		{Name: "employee_id", Label: "Employee ID"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "intranet")
	assert.Contains(t, body, `name="pin"`)
	assert.Contains(t, body, `type="password"`)
	// Untyped fields default to text inputs.
	assert.Contains(t, body, `name="employee_id"`)
	assert.Contains(t, body, `type="text"`)
	assert.Contains(t, body, `action="/portal/wf1"`)
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.Credentials("x"), http.StatusUnauthorized},
		{apperrors.Authentication("x"), http.StatusUnauthorized},
		{apperrors.OTP("x"), http.StatusUnauthorized},
		{apperrors.OTPRetryExhausted("x"), http.StatusUnauthorized},
		{apperrors.ACL("x"), http.StatusForbidden},
		{apperrors.NotFound("x"), http.StatusNotFound},
		{apperrors.Conflict("x"), http.StatusConflict},
		{apperrors.Validation("x"), http.StatusBadRequest},
		{apperrors.Internal("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWriteErrorHidesWrappedCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.Wrap(assertableCause{}, apperrors.ErrCodeInternal, "ldap user bind"))

	assert.NotContains(t, rec.Body.String(), "socket 10.0.0.12 closed")
	assert.Contains(t, rec.Body.String(), "ldap user bind")
}

type assertableCause struct{}

func (assertableCause) Error() string { return "socket 10.0.0.12 closed" }
