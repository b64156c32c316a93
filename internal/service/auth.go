package service

// Package service implements the authentication orchestration core:
// credential strategies, the backend fallback chain, the
// double-authentication state machine, and session/token lifecycle.

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// AuthenticationOptions groups dependencies for one authentication flow.
type AuthenticationOptions struct {
	Workflow  domainportal.Workflow
	Backends  ports.BackendDirectory
	Sessions  ports.SessionStore
	Encryptor cryptoutil.Encryptor
	Logger    *slog.Logger
	// Cookie is the inbound portal cookie value; empty on first contact.
	Cookie string
}

// Authentication drives one request-scoped authentication flow for a
// workflow: it loads or creates the portal session, folds over the
// backend chain, and registers successful outcomes.
type Authentication struct {
	workflow  domainportal.Workflow
	backends  ports.BackendDirectory
	sessions  ports.SessionStore
	logger    *slog.Logger
	session   *PortalSession
	backendID string
	creds     domainportal.Credentials
}

// NewAuthentication builds a flow for the workflow, resolving which
// backend (if any) the session is already authenticated on. Returns
// *portal.RedirectionNeededError when the workflow needs no
// authentication.
func NewAuthentication(ctx context.Context, opts AuthenticationOptions) (*Authentication, error) {
	a := &Authentication{
		workflow: opts.Workflow,
		backends: opts.Backends,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		session:  NewPortalSession(opts.Sessions, opts.Encryptor, opts.Cookie),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if !a.workflow.RequiresAuthentication() {
		location, err := a.RedirectURL(ctx)
		if err != nil {
			return nil, err
		}
		return nil, &domainportal.RedirectionNeededError{
			Reason:   "workflow '" + a.workflow.Name + "' does not need authentication",
			Location: location,
		}
	}

	backendID, err := a.authenticatedOnBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.backendID = backendID
	return a, nil
}

// Session exposes the typed portal-session accessor for this flow.
func (a *Authentication) Session() *PortalSession { return a.session }

// Workflow returns the workflow bound to this flow.
func (a *Authentication) Workflow() domainportal.Workflow { return a.workflow }

// BackendID returns the id of the backend this flow is bound to, or "".
func (a *Authentication) BackendID() string { return a.backendID }

// Credentials returns the request-scoped credentials.
func (a *Authentication) Credentials() domainportal.Credentials { return a.creds }

// SetCredentials installs credentials collected by a strategy.
func (a *Authentication) SetCredentials(c domainportal.Credentials) { a.creds = c }

// IsAuthenticated reports whether the session is authenticated for this
// workflow, loading the cached login into the flow credentials when so.
func (a *Authentication) IsAuthenticated(ctx context.Context) (bool, error) {
	exists, err := a.session.Exists(ctx)
	if err != nil || !exists {
		return false, err
	}
	ok, err := a.session.AuthenticatedApp(ctx, a.workflow.ID)
	if err != nil || !ok {
		return false, err
	}
	login, err := a.session.Login(ctx, a.backendID)
	if err != nil {
		return false, err
	}
	a.creds.Login = login
	return true, nil
}

// DoubleAuthenticationRequired reports whether an OTP repository is
// configured and its second factor has not yet completed in this session.
func (a *Authentication) DoubleAuthenticationRequired(ctx context.Context) (bool, error) {
	otpID := a.workflow.Authentication.OTPRepositoryID
	if otpID == "" {
		return false, nil
	}
	done, err := a.session.IsDoubleAuthenticated(ctx, otpID)
	if err != nil {
		return false, err
	}
	return !done, nil
}

// authenticatedOnBackend returns the id of the first configured backend
// carrying an authenticated flag in the session, or "".
func (a *Authentication) authenticatedOnBackend(ctx context.Context) (string, error) {
	for _, id := range a.workflow.BackendIDs() {
		ok, err := a.session.AuthenticatedBackend(ctx, id)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	return "", nil
}

// AuthenticateSSOACLs re-validates the session's authenticated backend
// before SSO propagation. LDAP backends re-authenticate with the cached
// credentials so directory ACLs are enforced; other kinds carry no ACLs
// and pass through. Returns the usable backend id, or "" when none is
// authenticated; the last re-authentication error is surfaced when every
// authenticated backend fails it.
func (a *Authentication) AuthenticateSSOACLs(ctx context.Context) (string, error) {
	var lastErr error
	attempted := false
	for _, id := range a.workflow.BackendIDs() {
		ok, err := a.session.AuthenticatedBackend(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		repo, err := a.backends.Repository(id)
		if err != nil {
			return "", err
		}
		if repo.Kind != domainportal.RepoKindLDAP {
			return id, nil
		}
		login, err := a.session.Login(ctx, id)
		if err != nil {
			return "", err
		}
		password, err := a.session.AutologonPassword(ctx, id)
		if err != nil {
			return "", err
		}
		backend, err := a.backends.Authenticator(id)
		if err != nil {
			return "", err
		}
		attempted = true
		if _, authErr := backend.Authenticate(ctx, login, password); authErr != nil {
			a.logger.ErrorContext(ctx, "sso re-authentication failed",
				"login", login, "backend", repo.String(), "error", authErr)
			lastErr = authErr
			continue
		}
		a.logger.InfoContext(ctx, "user re-authenticated for sso",
			"login", login, "backend", repo.String())
		return id, nil
	}
	if attempted && lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

// Authenticate folds over the primary-then-fallback backend chain,
// strictly in configured order and never in parallel: backend calls may
// carry side effects (lockout counters) that must not run speculatively.
// Each failure is logged and swallowed; the first success is returned and
// its backend id recorded. When every backend fails, the last observed
// error is surfaced, or a generic authentication error when the chain
// produced none.
func (a *Authentication) Authenticate(ctx context.Context) (domainportal.AuthResult, error) {
	var lastErr error
	for i, id := range a.workflow.BackendIDs() {
		repo, err := a.backends.Repository(id)
		if err != nil {
			return domainportal.AuthResult{}, err
		}
		result, err := a.authenticateOn(ctx, repo)
		if err != nil {
			if !apperrors.IsBackendFailure(err) {
				return domainportal.AuthResult{}, err
			}
			a.logger.ErrorContext(ctx, "authentication failure",
				"login", a.creds.Login, "backend", repo.String(), "primary", i == 0, "error", err)
			lastErr = err
			continue
		}
		a.backendID = repo.ID
		a.logger.InfoContext(ctx, "user authenticated",
			"login", a.creds.Login, "backend", repo.String(), "primary", i == 0)
		return result, nil
	}
	if lastErr != nil {
		return domainportal.AuthResult{}, lastErr
	}
	return domainportal.AuthResult{}, apperrors.Authenticationf(
		"authentication failed for %q on every configured backend", a.creds.Login)
}

// authenticateOn runs one backend attempt, normalizing internal-store
// results into the backend-agnostic shape.
func (a *Authentication) authenticateOn(ctx context.Context, repo domainportal.Repository) (domainportal.AuthResult, error) {
	backend, err := a.backends.Authenticator(repo.ID)
	if err != nil {
		return domainportal.AuthResult{}, err
	}
	result, err := backend.Authenticate(ctx, a.creds.Login, a.creds.Secret)
	if err != nil {
		return domainportal.AuthResult{}, err
	}
	if repo.Kind == domainportal.RepoKindInternal {
		return a.normalizeInternal(result)
	}
	return result, nil
}

// normalizeInternal wraps a raw internal-store result with the default
// bearer-token grant; account flags and the mail claim are carried
// through. Other backend kinds return the normalized shape directly.
func (a *Authentication) normalizeInternal(result domainportal.AuthResult) (domainportal.AuthResult, error) {
	if result.Login == "" {
		return domainportal.AuthResult{}, apperrors.Authenticationf(
			"empty authentication result for username %q", a.creds.Login)
	}
	if result.OAuth2 == nil {
		result.OAuth2 = domainportal.DefaultOAuth2Policy(a.workflow.Authentication.AuthTimeout)
	}
	return result, nil
}

// AuthenticateToken folds the Kerberos Negotiate token over the backend
// chain. Only kerberos-kind repositories participate; the winning
// (iterated) backend id is recorded and the authenticated principal DN
// becomes the flow login.
func (a *Authentication) AuthenticateToken(ctx context.Context, token []byte) (domainportal.AuthResult, error) {
	var lastErr error
	for i, id := range a.workflow.BackendIDs() {
		repo, err := a.backends.Repository(id)
		if err != nil {
			return domainportal.AuthResult{}, err
		}
		if repo.Kind != domainportal.RepoKindKerberos {
			lastErr = apperrors.Authenticationf("repository %q is not a kerberos repository", repo.String())
			a.logger.ErrorContext(ctx, "token authentication failure",
				"backend", repo.String(), "primary", i == 0, "error", lastErr)
			continue
		}
		backend, err := a.backends.TokenAuthenticator(id)
		if err != nil {
			return domainportal.AuthResult{}, err
		}
		result, err := backend.AuthenticateToken(ctx, token)
		if err != nil {
			if !apperrors.IsBackendFailure(err) {
				return domainportal.AuthResult{}, err
			}
			a.logger.ErrorContext(ctx, "token authentication failure",
				"backend", repo.String(), "primary", i == 0, "error", err)
			lastErr = err
			continue
		}
		a.backendID = repo.ID
		a.creds = domainportal.Credentials{Login: result.DN}
		a.logger.InfoContext(ctx, "user authenticated from negotiate token",
			"login", result.DN, "backend", repo.String(), "primary", i == 0)
		return result, nil
	}
	if lastErr != nil {
		return domainportal.AuthResult{}, lastErr
	}
	return domainportal.AuthResult{}, apperrors.Authentication("no kerberos repository configured")
}

// RegisterUser persists a successful primary authentication: it creates
// or reuses the bearer-token session and writes the backend binding into
// the portal session, all scoped with the workflow auth timeout. Returns
// the session cookie and the bearer token.
func (a *Authentication) RegisterUser(ctx context.Context, result domainportal.AuthResult) (string, string, error) {
	timeout := a.workflow.Authentication.AuthTimeout

	// Reuse a live token bound to this backend; otherwise mint a new one.
	token, err := a.session.OAuth2Token(ctx, a.backendID)
	if err != nil {
		return "", "", err
	}
	oauth2 := NewOAuth2Session(a.sessions, token)
	live, err := oauth2.Exists(ctx)
	if err != nil {
		return "", "", err
	}
	if !live {
		oauth2 = NewOAuth2Session(a.sessions, uuid.NewString())
		policy := result.OAuth2
		if policy == nil {
			policy = domainportal.DefaultOAuth2Policy(timeout)
		}
		if regErr := oauth2.Register(ctx, *policy); regErr != nil {
			return "", "", regErr
		}
		a.logger.DebugContext(ctx, "oauth2 session registered", "backend", a.backendID)
	}

	redirectURL, err := a.RedirectURL(ctx)
	if err != nil {
		return "", "", err
	}
	err = a.session.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID:      a.workflow.ID,
		WorkflowName:    a.workflow.Name,
		BackendID:       a.backendID,
		RedirectURL:     redirectURL,
		OTPRepositoryID: a.workflow.Authentication.OTPRepositoryID,
		Login:           a.creds.Login,
		Password:        a.creds.Secret,
		OAuth2Token:     oauth2.Token(),
		Result:          result,
		TTL:             timeout,
	})
	if err != nil {
		return "", "", err
	}
	a.logger.DebugContext(ctx, "authentication registered in portal session",
		"login", a.creds.Login, "backend", a.backendID)
	return a.session.Cookie(), oauth2.Token(), nil
}

// RegisterSSO propagates an authenticated backend identity onto this
// workflow without re-collecting credentials. When the workflow requires
// double authentication, the second-factor machine is immediately moved
// to its issued state.
func (a *Authentication) RegisterSSO(ctx context.Context, backendID string) (string, string, error) {
	login, err := a.session.Login(ctx, backendID)
	if err != nil {
		return "", "", err
	}
	token, err := a.session.OAuth2Token(ctx, backendID)
	if err != nil {
		return "", "", err
	}
	password, err := a.session.AutologonPassword(ctx, backendID)
	if err != nil {
		return "", "", err
	}
	redirectURL, err := a.RedirectURL(ctx)
	if err != nil {
		return "", "", err
	}

	a.backendID = backendID
	a.creds = domainportal.Credentials{Login: login, Secret: password}

	err = a.session.RegisterSSO(ctx, RegisterSSOInput{
		WorkflowID:  a.workflow.ID,
		BackendID:   backendID,
		RedirectURL: redirectURL,
		Login:       login,
		OAuth2Token: token,
		TTL:         a.workflow.Authentication.AuthTimeout,
	})
	if err != nil {
		return "", "", err
	}
	a.logger.InfoContext(ctx, "sso registered", "login", login, "workflow", a.workflow.Name)

	required, err := a.DoubleAuthenticationRequired(ctx)
	if err != nil {
		return "", "", err
	}
	if required {
		da := NewDoubleAuthentication(a)
		if issueErr := da.CreateAuthentication(ctx); issueErr != nil {
			return "", "", issueErr
		}
		a.logger.DebugContext(ctx, "double authentication issued for sso", "login", login)
	}
	return a.session.Cookie(), token, nil
}

// RedirectURL resolves where the user lands after authentication: the
// workflow redirect URI, falling back to the URL cached in session.
func (a *Authentication) RedirectURL(ctx context.Context) (string, error) {
	if a.workflow.RedirectURI != "" {
		return a.workflow.RedirectURI, nil
	}
	return a.session.StoredURL(ctx, a.workflow.ID)
}

// GetCredentials fills missing credential halves from the session: login
// from the cached backend binding, secret from the decrypted autologon
// password. Used when the transport carries no (or partial) credentials.
func (a *Authentication) GetCredentials(ctx context.Context, strategy CredentialStrategy, r *Request) error {
	if a.creds.Login == "" || a.creds.Secret == "" {
		if creds, err := strategy.RetrieveCredentials(r); err == nil {
			a.creds = creds
		}
	}
	if a.creds.Login == "" {
		login, err := a.session.Login(ctx, a.backendID)
		if err != nil {
			return err
		}
		a.creds.Login = login
	}
	if a.creds.Secret == "" {
		if a.backendID == "" {
			backendID, err := a.authenticatedOnBackend(ctx)
			if err != nil {
				return err
			}
			a.backendID = backendID
		}
		password, err := a.session.AutologonPassword(ctx, a.backendID)
		if err != nil {
			return err
		}
		a.creds.Secret = password
	}
	return nil
}
