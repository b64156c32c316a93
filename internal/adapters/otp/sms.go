package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

const defaultSMSKeyLength = 6

// WebhookSMSConfig captures the subset of SMS gateway behaviour we need.
type WebhookSMSConfig struct {
	WebhookURL string
	// APIKey is sent as a bearer token when set.
	APIKey     string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// WebhookSMSSender delivers one-time keys through an HTTP SMS gateway.
type WebhookSMSSender struct {
	webhookURL string
	apiKey     string
	retryLimit int
	client     *http.Client
}

// NewWebhookSMSSender builds an SMS gateway client. Callers should pass
// a validated config.
func NewWebhookSMSSender(cfg WebhookSMSConfig) (*WebhookSMSSender, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, apperrors.Validation("sms webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &WebhookSMSSender{
		webhookURL: webhookURL,
		apiKey:     cfg.APIKey,
		retryLimit: retries,
		client:     hc,
	}, nil
}

// Send posts the message to the gateway, retrying transient failures.
func (s *WebhookSMSSender) Send(ctx context.Context, phone, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": body,
	})
	if err != nil {
		return fmt.Errorf("encode sms payload: %w", err)
	}

	attempts := s.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = s.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (s *WebhookSMSSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sms gateway %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SMSProvider issues numeric one-time keys delivered through an SMS
// sender and verifies them by equality.
type SMSProvider struct {
	sender    ports.SMSSender
	keyLength int
	logger    *slog.Logger
}

// SMSProviderOptions configures an SMSProvider.
type SMSProviderOptions struct {
	Sender    ports.SMSSender
	KeyLength int
	Logger    *slog.Logger
}

// NewSMSProvider constructs an SMS one-time-key provider.
func NewSMSProvider(opts SMSProviderOptions) *SMSProvider {
	if opts.KeyLength <= 0 {
		opts.KeyLength = defaultSMSKeyLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SMSProvider{
		sender:    opts.Sender,
		keyLength: opts.KeyLength,
		logger:    opts.Logger.With("component", "otp.sms"),
	}
}

// Register generates a numeric key and dispatches it to the user's phone.
func (p *SMSProvider) Register(ctx context.Context, in ports.OTPRegisterInput) (ports.OTPIssue, error) {
	key, err := randomKey(digits, p.keyLength)
	if err != nil {
		return ports.OTPIssue{}, err
	}
	body := fmt.Sprintf("%s authentication key: %s", in.WorkflowName, key)
	if err := p.sender.Send(ctx, in.Phone, body); err != nil {
		return ports.OTPIssue{}, apperrors.Wrap(err, apperrors.ErrCodeOTP, "send one-time key sms")
	}
	p.logger.InfoContext(ctx, "one-time key sent by sms", "workflow", in.WorkflowID)
	return ports.OTPIssue{Key: key}, nil
}

// Verify compares by equality; a mismatch is an authentication failure.
func (p *SMSProvider) Verify(_ context.Context, key, submitted string) error {
	if key == "" || key != submitted {
		return apperrors.Authentication("submitted one-time key does not match")
	}
	return nil
}
