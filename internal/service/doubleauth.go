package service

import (
	"context"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// DoubleAuthentication manages the second-factor step of a flow: OTP
// issuance, resend, retry limiting, and completion. It is independent of
// which credential strategy triggered it.
//
// The machine moves through: no key issued yet -> key issued (cached in
// session) -> awaiting the submitted key -> verified, or failed once the
// retry budget is spent. Re-issuance on resend is re-entrant.
type DoubleAuthentication struct {
	auth   *Authentication
	resend bool
	// challenge carries an optional user-facing enrollment token
	// (TOTP provisioning) produced at issuance.
	challenge string
}

// NewDoubleAuthentication wraps an existing flow whose primary
// authentication already succeeded.
func NewDoubleAuthentication(a *Authentication) *DoubleAuthentication {
	return &DoubleAuthentication{auth: a}
}

// NewDoubleAuthenticationFlow builds the second-factor flow for an
// inbound OTP submission. The portal session must exist and carry a
// cached login; the backend binding is resolved by login presence so the
// flow survives a deauthentication caused by a previous failed factor.
func NewDoubleAuthenticationFlow(ctx context.Context, opts AuthenticationOptions) (*DoubleAuthentication, error) {
	a, err := NewAuthentication(ctx, opts)
	if err != nil {
		return nil, err
	}
	exists, err := a.session.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.Credentials("no portal session for double authentication")
	}
	if a.backendID == "" {
		for _, id := range a.workflow.BackendIDs() {
			ok, hasErr := a.session.HasLogin(ctx, id)
			if hasErr != nil {
				return nil, hasErr
			}
			if ok {
				a.backendID = id
				break
			}
		}
	}
	if a.backendID == "" {
		return nil, apperrors.Credentials("no authenticated backend for double authentication")
	}
	login, err := a.session.Login(ctx, a.backendID)
	if err != nil {
		return nil, err
	}
	a.creds.Login = login
	return &DoubleAuthentication{auth: a}, nil
}

// Auth exposes the underlying flow.
func (d *DoubleAuthentication) Auth() *Authentication { return d.auth }

// Resend reports whether the current request asked for re-issuance.
func (d *DoubleAuthentication) Resend() bool { return d.resend }

// Challenge returns the enrollment token produced at issuance, or "".
func (d *DoubleAuthentication) Challenge() string { return d.challenge }

// RetrieveCredentials reads the OTP submission: a resend flag and,
// unless resending, the submitted key, cross-checked against the key
// cached in session. A non-resend request with an empty cached key fails
// with a credentials error.
func (d *DoubleAuthentication) RetrieveCredentials(ctx context.Context, r *Request) error {
	d.resend = r.Form.Get(FieldOTPResend) != ""
	if d.resend {
		return nil
	}
	submitted := r.Form.Get(FieldOTPKey)
	if submitted == "" {
		return apperrors.Credentials("missing one-time key field")
	}
	cached, err := d.auth.session.OTPKey(ctx)
	if err != nil {
		return err
	}
	if cached == "" {
		return apperrors.Credentials("no one-time key pending for this session")
	}
	d.auth.creds = domainportal.Credentials{Login: cached, Secret: submitted}
	return nil
}

func (d *DoubleAuthentication) otpRepository() (domainportal.Repository, error) {
	otpID := d.auth.workflow.Authentication.OTPRepositoryID
	repo, err := d.auth.backends.Repository(otpID)
	if err != nil {
		return domainportal.Repository{}, err
	}
	if repo.OTP == nil {
		return domainportal.Repository{}, apperrors.OTPf("repository %q has no otp configuration", repo.String())
	}
	return repo, nil
}

// CreateAuthentication issues a one-time secret when none is cached, or
// unconditionally on resend. Issuance validates the contact channel for
// the configured delivery type before any dispatch; dispatch failures are
// logged and normalized so backend detail never reaches the user.
func (d *DoubleAuthentication) CreateAuthentication(ctx context.Context) error {
	repo, err := d.otpRepository()
	if err != nil {
		return err
	}
	cached, err := d.auth.session.OTPKey(ctx)
	if err != nil {
		return err
	}

	if d.resend || cached == "" {
		email, err := d.auth.session.UserEmail(ctx)
		if err != nil {
			return err
		}
		phone, err := d.auth.session.UserPhone(ctx)
		if err != nil {
			return err
		}
		if err := validateContact(repo.OTP, email, phone); err != nil {
			d.auth.logger.ErrorContext(ctx, "otp contact channel invalid",
				"otp_type", repo.OTP.Type, "error", err)
			return err
		}

		provider, err := d.auth.backends.OTPProvider(repo.ID)
		if err != nil {
			return err
		}
		login, err := d.auth.session.Login(ctx, d.auth.backendID)
		if err != nil {
			return err
		}
		issue, err := provider.Register(ctx, ports.OTPRegisterInput{
			Email:        email,
			Phone:        phone,
			Sender:       d.auth.workflow.Authentication.EmailFrom,
			WorkflowID:   d.auth.workflow.ID,
			WorkflowName: d.auth.workflow.Name,
			BackendID:    d.auth.backendID,
			Login:        login,
		})
		if err != nil {
			d.auth.logger.ErrorContext(ctx, "otp issuance failed",
				"otp_type", repo.OTP.Type, "error", err)
			return apperrors.OTP("error while sending secret key, contact your administrator")
		}
		if issue.Key == "" {
			d.auth.logger.ErrorContext(ctx, "otp issuance returned empty key", "otp_type", repo.OTP.Type)
			return apperrors.OTP("error while sending secret key, contact your administrator")
		}
		ttl := d.auth.workflow.Authentication.AuthTimeout
		if err := d.auth.session.SetOTPKey(ctx, issue.Key, ttl); err != nil {
			return err
		}
		d.challenge = issue.Challenge
		d.auth.logger.InfoContext(ctx, "one-time key issued",
			"otp_type", repo.OTP.Type, "login", login, "resend", d.resend)
	}

	// TOTP verification consumes the cached shared secret.
	if repo.OTP.Type == domainportal.OTPTypeTOTP {
		key, err := d.auth.session.OTPKey(ctx)
		if err != nil {
			return err
		}
		d.auth.creds.Login = key
	}
	return nil
}

// validateContact rejects issuance when the delivery channel claim is
// missing or a directory placeholder.
func validateContact(cfg *domainportal.OTPConfig, email, phone string) error {
	switch {
	case cfg.Type == domainportal.OTPTypePhone && cfg.PhoneService != "authy":
		if domainportal.PlaceholderClaim(phone) {
			return apperrors.OTP("cannot find phone in repository, contact your administrator")
		}
	default:
		if domainportal.PlaceholderClaim(email) {
			return apperrors.OTP("cannot find mail in repository, contact your administrator")
		}
	}
	return nil
}

// Authenticate verifies the submitted key: plain string equality for
// email delivery, delegated verification for TOTP and SMS gateways. On
// success the session's double-authentication flag is set for this OTP
// repository, scoped with the workflow auth timeout.
func (d *DoubleAuthentication) Authenticate(ctx context.Context) error {
	repo, err := d.otpRepository()
	if err != nil {
		return err
	}

	cached, submitted := d.auth.creds.Login, d.auth.creds.Secret
	if repo.OTP.Type == domainportal.OTPTypeEmail {
		if domainportal.PlaceholderClaim(cached) || cached != submitted {
			return apperrors.Authentication("submitted one-time key does not match")
		}
	} else {
		provider, provErr := d.auth.backends.OTPProvider(repo.ID)
		if provErr != nil {
			return provErr
		}
		if verifyErr := provider.Verify(ctx, cached, submitted); verifyErr != nil {
			return verifyErr
		}
	}

	d.auth.logger.InfoContext(ctx, "user double-authenticated", "backend", repo.String())
	ttl := d.auth.workflow.Authentication.AuthTimeout
	return d.auth.session.RegisterDoubleAuthentication(ctx, repo.ID, ttl)
}

// AuthenticationFailure records a failed verification. The retry counter
// is monotone within the session; reaching the configured maximum
// deauthenticates the user for this workflow and fails terminally,
// forcing a restart of primary authentication.
func (d *DoubleAuthentication) AuthenticationFailure(ctx context.Context) error {
	ttl := d.auth.workflow.Authentication.AuthTimeout
	retries, err := d.auth.session.IncrementOTPRetries(ctx, ttl)
	if err != nil {
		return err
	}
	maxRetry := d.maxRetry()
	if retries < int64(maxRetry) {
		return nil
	}
	d.auth.logger.ErrorContext(ctx, "otp retry budget exhausted",
		"retries", retries, "max", maxRetry)
	if err := d.auth.session.Deauthenticate(ctx, d.auth.workflow.ID, d.auth.backendID, ttl); err != nil {
		return err
	}
	return apperrors.OTPRetryExhausted("maximum number of one-time key retries reached, please re-authenticate")
}

func (d *DoubleAuthentication) maxRetry() int {
	if m := d.auth.workflow.Authentication.OTPMaxRetry; m > 0 {
		return m
	}
	if repo, err := d.otpRepository(); err == nil && repo.OTP.MaxRetry > 0 {
		return repo.OTP.MaxRetry
	}
	return 3
}
