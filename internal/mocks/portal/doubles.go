package portal

// Package portal contains simple hand-written test doubles for the
// portal ports. These are lightweight and suitable for unit tests
// without codegen.

import (
	"context"
	"strconv"
	"sync"
	"time"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.Authenticator      = (*MockAuthenticator)(nil)
	_ ports.TokenAuthenticator = (*MockTokenAuthenticator)(nil)
	_ ports.OTPProvider        = (*MockOTPProvider)(nil)
	_ ports.MailSender         = (*MockMailSender)(nil)
	_ ports.SMSSender          = (*MockSMSSender)(nil)
	_ ports.ChallengeProvider  = (FixedChallengeProvider)("")
)

// MemorySessionStore is an in-memory ports.SessionStore. TTLs are
// recorded but not enforced; tests assert on them directly.
type MemorySessionStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
	ttls map[string]time.Duration
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		data: map[string]map[string]string{},
		ttls: map[string]time.Duration{},
	}
}

func (s *MemorySessionStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemorySessionStore) GetField(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key][field], nil
}

func (s *MemorySessionStore) GetAllFields(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.data[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemorySessionStore) SetFields(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[key] == nil {
		s.data[key] = map[string]string{}
	}
	for k, v := range fields {
		s.data[key][k] = v
	}
	s.ttls[key] = ttl
	return nil
}

func (s *MemorySessionStore) IncrField(_ context.Context, key, field string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[key] == nil {
		s.data[key] = map[string]string{}
	}
	n, _ := strconv.ParseInt(s.data[key][field], 10, 64)
	n++
	s.data[key][field] = strconv.FormatInt(n, 10)
	s.ttls[key] = ttl
	return n, nil
}

func (s *MemorySessionStore) DeleteFields(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		delete(s.data[key], f)
	}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *MemorySessionStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls[key] = ttl
	return nil
}

// TTL returns the last TTL recorded for a key.
func (s *MemorySessionStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Fields returns a copy of the stored fields for a key.
func (s *MemorySessionStore) Fields(key string) map[string]string {
	out, _ := s.GetAllFields(context.Background(), key)
	return out
}

// MockAuthenticator is a scriptable ports.Authenticator that records
// every attempted login.
type MockAuthenticator struct {
	Result domainportal.AuthResult
	Err    error
	// AuthenticateFunc overrides Result/Err when set.
	AuthenticateFunc func(ctx context.Context, login, secret string) (domainportal.AuthResult, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, login, secret string) (domainportal.AuthResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, login)
	m.mu.Unlock()
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, login, secret)
	}
	return m.Result, m.Err
}

// Calls returns the logins passed to Authenticate, in order.
func (m *MockAuthenticator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times Authenticate was invoked.
func (m *MockAuthenticator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockTokenAuthenticator is a scriptable ports.TokenAuthenticator.
type MockTokenAuthenticator struct {
	Result domainportal.AuthResult
	Err    error

	mu    sync.Mutex
	calls [][]byte
}

func (m *MockTokenAuthenticator) AuthenticateToken(_ context.Context, token []byte) (domainportal.AuthResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]byte(nil), token...))
	m.mu.Unlock()
	return m.Result, m.Err
}

// CallCount returns how many times AuthenticateToken was invoked.
func (m *MockTokenAuthenticator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockOTPProvider is a scriptable ports.OTPProvider that counts
// issuances.
type MockOTPProvider struct {
	Issue ports.OTPIssue
	// Keys returned on successive Register calls; overrides Issue when
	// non-empty.
	Keys        []string
	RegisterErr error
	VerifyErr   error

	mu            sync.Mutex
	registerCalls int
	verifyCalls   int
}

func (m *MockOTPProvider) Register(_ context.Context, _ ports.OTPRegisterInput) (ports.OTPIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return ports.OTPIssue{}, m.RegisterErr
	}
	issue := m.Issue
	if len(m.Keys) > 0 {
		i := m.registerCalls
		if i >= len(m.Keys) {
			i = len(m.Keys) - 1
		}
		issue = ports.OTPIssue{Key: m.Keys[i]}
	}
	m.registerCalls++
	return issue, nil
}

func (m *MockOTPProvider) Verify(_ context.Context, key, submitted string) error {
	m.mu.Lock()
	m.verifyCalls++
	m.mu.Unlock()
	if m.VerifyErr != nil {
		return m.VerifyErr
	}
	if key == "" || key != submitted {
		return apperrors.Authentication("submitted one-time key does not match")
	}
	return nil
}

// RegisterCalls returns how many times Register was invoked.
func (m *MockOTPProvider) RegisterCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerCalls
}

// VerifyCalls returns how many times Verify was invoked.
func (m *MockOTPProvider) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls
}

// MockMailSender records sent messages.
type MockMailSender struct {
	Err error

	mu   sync.Mutex
	sent []ports.MailMessage
}

func (m *MockMailSender) Send(_ context.Context, msg ports.MailMessage) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the messages dispatched so far.
func (m *MockMailSender) Sent() []ports.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.MailMessage(nil), m.sent...)
}

// MockSMSSender records sent messages.
type MockSMSSender struct {
	Err error

	mu   sync.Mutex
	sent []string
}

func (m *MockSMSSender) Send(_ context.Context, phone, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, phone+": "+body)
	return nil
}

// Sent returns the messages dispatched so far.
func (m *MockSMSSender) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// FixedChallengeProvider always returns itself as the challenge.
type FixedChallengeProvider string

func (f FixedChallengeProvider) NewChallenge(_ int) (string, error) {
	return string(f), nil
}
