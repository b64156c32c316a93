package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/guardgate/portal/internal/errors"
	mocks "github.com/guardgate/portal/internal/mocks/portal"
	"github.com/guardgate/portal/internal/ports"
)

func TestRandomKey(t *testing.T) {
	key, err := randomKey(keyAlphabet, 8)
	require.NoError(t, err)
	assert.Len(t, key, 8)
	for _, c := range key {
		assert.Contains(t, keyAlphabet, string(c))
	}

	numeric, err := randomKey(digits, 6)
	require.NoError(t, err)
	assert.Len(t, numeric, 6)
	for _, c := range numeric {
		assert.Contains(t, digits, string(c))
	}
}

func TestEmailProviderRegister(t *testing.T) {
	sender := &mocks.MockMailSender{}
	p := NewEmailProvider(EmailProviderOptions{Mail: sender, From: "portal@example.com", KeyLength: 10})

	issue, err := p.Register(context.Background(), ports.OTPRegisterInput{
		Email:        "alice@example.com",
		Login:        "alice",
		WorkflowName: "intranet",
	})
	require.NoError(t, err)
	assert.Len(t, issue.Key, 10)
	assert.Empty(t, issue.Challenge)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "portal@example.com", sent[0].From)
	assert.Equal(t, "alice@example.com", sent[0].To)
	assert.Equal(t, "Authentication key for intranet", sent[0].Subject)
	assert.Contains(t, sent[0].Body, issue.Key)
}

func TestEmailProviderWorkflowSenderWins(t *testing.T) {
	sender := &mocks.MockMailSender{}
	p := NewEmailProvider(EmailProviderOptions{Mail: sender, From: "portal@example.com"})

	_, err := p.Register(context.Background(), ports.OTPRegisterInput{
		Email:  "alice@example.com",
		Sender: "intranet-noreply@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "intranet-noreply@example.com", sender.Sent()[0].From)
}

func TestEmailProviderDispatchFailure(t *testing.T) {
	sender := &mocks.MockMailSender{Err: apperrors.Internal("connect refused")}
	p := NewEmailProvider(EmailProviderOptions{Mail: sender})

	_, err := p.Register(context.Background(), ports.OTPRegisterInput{Email: "alice@example.com"})
	require.Error(t, err)
	assert.True(t, apperrors.IsOTP(err))
}

func TestSMSProviderRegister(t *testing.T) {
	sender := &mocks.MockSMSSender{}
	p := NewSMSProvider(SMSProviderOptions{Sender: sender})

	issue, err := p.Register(context.Background(), ports.OTPRegisterInput{
		Phone:        "+33600000000",
		WorkflowName: "intranet",
	})
	require.NoError(t, err)
	assert.Len(t, issue.Key, defaultSMSKeyLength)
	for _, c := range issue.Key {
		assert.Contains(t, digits, string(c))
	}

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "+33600000000")
	assert.Contains(t, sent[0], issue.Key)
}

func TestProviderVerifyByEquality(t *testing.T) {
	providers := map[string]ports.OTPProvider{
		"email": NewEmailProvider(EmailProviderOptions{Mail: &mocks.MockMailSender{}}),
		"sms":   NewSMSProvider(SMSProviderOptions{Sender: &mocks.MockSMSSender{}}),
	}
	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, p.Verify(context.Background(), "abc123", "abc123"))

			err := p.Verify(context.Background(), "abc123", "nope")
			require.Error(t, err)
			assert.True(t, apperrors.IsAuthentication(err))

			err = p.Verify(context.Background(), "", "")
			require.Error(t, err)
			assert.True(t, apperrors.IsAuthentication(err))
		})
	}
}

func TestWebhookSMSSenderPostsPayload(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhookSMSSender(WebhookSMSConfig{WebhookURL: srv.URL, APIKey: "gw-key"})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "+33600000000", "intranet authentication key: 123456"))
	assert.Equal(t, "Bearer gw-key", auth)
	assert.Equal(t, "+33600000000", got["to"])
	assert.Equal(t, "intranet authentication key: 123456", got["message"])
}

func TestWebhookSMSSenderRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewWebhookSMSSender(WebhookSMSConfig{WebhookURL: srv.URL, RetryLimit: 3})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "+33600000000", "key"))
	assert.Equal(t, 3, attempts)
}

func TestWebhookSMSSenderExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewWebhookSMSSender(WebhookSMSConfig{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	err = s.Send(context.Background(), "+33600000000", "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway unavailable")
	assert.Equal(t, 2, attempts)
}

func TestWebhookSMSSenderRequiresURL(t *testing.T) {
	_, err := NewWebhookSMSSender(WebhookSMSConfig{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestTOTPProviderRoundTrip(t *testing.T) {
	p := NewTOTPProvider("guardgate", nil)

	issue, err := p.Register(context.Background(), ports.OTPRegisterInput{Login: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, issue.Key)
	assert.True(t, strings.HasPrefix(issue.Challenge, "otpauth://totp/"))
	assert.Contains(t, issue.Challenge, "guardgate")

	code, err := totp.GenerateCode(issue.Key, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Verify(context.Background(), issue.Key, code))

	err = p.Verify(context.Background(), issue.Key, "000000")
	if err == nil {
		// One in a million collision with the current time step.
		t.Skip("generated code collided with 000000")
	}
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestTOTPProviderVerifyEmptySecret(t *testing.T) {
	p := NewTOTPProvider("", nil)
	err := p.Verify(context.Background(), "", "123456")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}
