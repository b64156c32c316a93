package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
	"github.com/guardgate/portal/internal/service"
)

// WorkflowSource resolves workflow definitions by id.
type WorkflowSource interface {
	GetByID(ctx context.Context, id string) (*domainportal.Workflow, error)
}

// PortalHandlers serves the captive-portal flow: challenge rendering,
// credential submission, second-factor verification, token issuance and
// logout.
type PortalHandlers struct {
	Workflows WorkflowSource
	Backends  ports.BackendDirectory
	Sessions  ports.SessionStore
	Encryptor cryptoutil.Encryptor
	Captcha   ports.ChallengeProvider
	Logger    *slog.Logger
}

func (h *PortalHandlers) options(wf *domainportal.Workflow, cookie string) service.AuthenticationOptions {
	return service.AuthenticationOptions{
		Workflow:  *wf,
		Backends:  h.Backends,
		Sessions:  h.Sessions,
		Encryptor: h.Encryptor,
		Logger:    h.Logger,
		Cookie:    cookie,
	}
}

func (h *PortalHandlers) workflow(w http.ResponseWriter, r *http.Request) *domainportal.Workflow {
	wf, err := h.Workflows.GetByID(r.Context(), r.PathValue("workflowID"))
	if err != nil {
		if apperrors.IsNotFound(err) {
			WriteError(w, err)
		} else {
			h.Logger.ErrorContext(r.Context(), "load workflow", "error", err)
			WriteError(w, apperrors.Internal("workflow lookup failed"))
		}
		return nil
	}
	return wf
}

// Challenge handles GET: it either redirects an authenticated session
// or emits the challenge matching the workflow's credential strategy.
func (h *PortalHandlers) Challenge(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	ctx := r.Context()

	a, err := service.NewAuthentication(ctx, h.options(wf, requestCookie(r)))
	var redir *domainportal.RedirectionNeededError
	if errors.As(err, &redir) {
		http.Redirect(w, r, redir.Location, http.StatusFound)
		return
	}
	if err != nil {
		h.fail(w, r, wf, err)
		return
	}

	authenticated, err := a.IsAuthenticated(ctx)
	if err != nil {
		h.fail(w, r, wf, err)
		return
	}
	if authenticated {
		pending, derr := a.DoubleAuthenticationRequired(ctx)
		if derr != nil {
			h.fail(w, r, wf, derr)
			return
		}
		if !pending {
			h.redirectAuthenticated(w, r, a)
			return
		}
	} else if a.BackendID() != "" && h.completeSSO(w, r, a) {
		return
	}

	h.renderChallenge(w, r, a, "")
}

// completeSSO propagates an identity already authenticated on one of
// the workflow's backends onto this workflow without re-prompting.
// Reports whether it wrote the response; false means no usable backend
// was found and the caller should challenge as usual.
func (h *PortalHandlers) completeSSO(w http.ResponseWriter, r *http.Request, a *service.Authentication) bool {
	ctx := r.Context()
	backendID, err := a.AuthenticateSSOACLs(ctx)
	if err != nil {
		h.renderAuthFailure(w, r, a, err)
		return true
	}
	if backendID == "" {
		return false
	}
	wf := a.Workflow()
	if _, _, err := a.RegisterSSO(ctx, backendID); err != nil {
		h.fail(w, r, &wf, err)
		return true
	}
	pending, err := a.DoubleAuthenticationRequired(ctx)
	if err != nil {
		h.fail(w, r, &wf, err)
		return true
	}
	if pending {
		http.SetCookie(w, sessionCookie(r, a.Session().Cookie(), wf.Authentication.AuthTimeout))
		renderTemplate(w, h.Logger, renderParams{
			name:   "otp",
			status: http.StatusOK,
			data:   newOTPData(wf.Name, r.URL.Path, "", ""),
		})
		return true
	}
	h.redirectAuthenticated(w, r, a)
	return true
}

// Submit handles POST: one-time-key submissions are routed to the
// second-factor machine, everything else through primary
// authentication.
func (h *PortalHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	req := service.NewRequest(r)
	if req.Form.Get(service.FieldOTPKey) != "" || req.Form.Get(service.FieldOTPResend) != "" {
		h.submitOTP(w, r, wf, req)
		return
	}
	h.submitLogin(w, r, wf, req)
}

func (h *PortalHandlers) submitLogin(w http.ResponseWriter, r *http.Request, wf *domainportal.Workflow, req *service.Request) {
	ctx := r.Context()
	a, err := service.NewAuthentication(ctx, h.options(wf, requestCookie(r)))
	var redir *domainportal.RedirectionNeededError
	if errors.As(err, &redir) {
		http.Redirect(w, r, redir.Location, http.StatusFound)
		return
	}
	if err != nil {
		h.fail(w, r, wf, err)
		return
	}

	authenticated, err := a.IsAuthenticated(ctx)
	if err != nil {
		h.fail(w, r, wf, err)
		return
	}

	var result domainportal.AuthResult
	if !authenticated {
		// A submission without a login rides on an identity already
		// authenticated for another workflow when one is available.
		if req.Form.Get(service.FieldLogin) == "" &&
			a.BackendID() != "" && h.completeSSO(w, r, a) {
			return
		}
		result, err = h.authenticatePrimary(ctx, a, req)
		if err != nil {
			h.renderAuthFailure(w, r, a, err)
			return
		}
		if _, _, err = a.RegisterUser(ctx, result); err != nil {
			h.fail(w, r, wf, err)
			return
		}
	}

	pending, err := a.DoubleAuthenticationRequired(ctx)
	if err != nil {
		h.fail(w, r, wf, err)
		return
	}
	if pending {
		d := service.NewDoubleAuthentication(a)
		if cerr := d.CreateAuthentication(ctx); cerr != nil {
			h.renderAuthFailure(w, r, a, cerr)
			return
		}
		http.SetCookie(w, sessionCookie(r, a.Session().Cookie(), wf.Authentication.AuthTimeout))
		renderTemplate(w, h.Logger, renderParams{
			name:   "otp",
			status: http.StatusOK,
			data:   newOTPData(wf.Name, r.URL.Path, "", d.Challenge()),
		})
		return
	}

	h.redirectAuthenticated(w, r, a)
}

func (h *PortalHandlers) authenticatePrimary(ctx context.Context, a *service.Authentication, req *service.Request) (domainportal.AuthResult, error) {
	policy := a.Workflow().Authentication
	if policy.AuthType == domainportal.AuthTypeKerberos {
		token, err := (service.NegotiateStrategy{}).RetrieveToken(req)
		if err != nil {
			return domainportal.AuthResult{}, err
		}
		return a.AuthenticateToken(ctx, token)
	}

	strategy := service.StrategyFor(policy.AuthType)
	if err := a.GetCredentials(ctx, strategy, req); err != nil {
		return domainportal.AuthResult{}, err
	}
	if creds := a.Credentials(); creds.Login == "" || creds.Secret == "" {
		return domainportal.AuthResult{}, apperrors.Credentials("missing login or password")
	}
	if policy.AuthType == domainportal.AuthTypeForm {
		if err := a.VerifyCaptcha(ctx, req.Form.Get(service.FieldCaptcha)); err != nil {
			return domainportal.AuthResult{}, err
		}
	}
	return a.Authenticate(ctx)
}

func (h *PortalHandlers) submitOTP(w http.ResponseWriter, r *http.Request, wf *domainportal.Workflow, req *service.Request) {
	ctx := r.Context()
	d, err := service.NewDoubleAuthenticationFlow(ctx, h.options(wf, requestCookie(r)))
	if err != nil {
		h.renderOTPFailure(w, r, wf, nil, err)
		return
	}
	if err := d.RetrieveCredentials(ctx, req); err != nil {
		h.renderOTPFailure(w, r, wf, d, err)
		return
	}

	if d.Resend() {
		if err := d.CreateAuthentication(ctx); err != nil {
			h.renderOTPFailure(w, r, wf, d, err)
			return
		}
		renderTemplate(w, h.Logger, renderParams{
			name:   "otp",
			status: http.StatusOK,
			data:   newOTPData(wf.Name, r.URL.Path, "a new key has been sent", d.Challenge()),
		})
		return
	}

	if err := d.Authenticate(ctx); err != nil {
		if ferr := d.AuthenticationFailure(ctx); ferr != nil {
			// Retry budget exhausted: back to primary authentication.
			h.renderChallenge(w, r, d.Auth(), ferr.Error())
			return
		}
		h.renderOTPFailure(w, r, wf, d, err)
		return
	}

	h.redirectAuthenticated(w, r, d.Auth())
}

// IssueToken handles programmatic token issuance: credentials arrive as
// form fields or a basic authorization header and the bearer token is
// returned per the backend's token-return policy.
func (h *PortalHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	ctx := r.Context()

	o, err := service.NewOAuth2Authentication(ctx, h.options(wf, requestCookie(r)))
	var redir *domainportal.RedirectionNeededError
	if errors.As(err, &redir) {
		WriteError(w, apperrors.Validation("workflow does not require authentication"))
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	login, secret := tokenCredentials(r)
	if err := o.RetrieveCredentials(login, secret); err != nil {
		WriteError(w, err)
		return
	}
	policy, err := o.Authenticate(ctx)
	if err != nil {
		h.Logger.InfoContext(ctx, "token issuance refused", "workflow", wf.ID, "error", err)
		WriteError(w, err)
		return
	}

	h.writeToken(w, o.Token(), policy)
}

func tokenCredentials(r *http.Request) (string, string) {
	if login, secret, ok := r.BasicAuth(); ok {
		return login, secret
	}
	_ = r.ParseForm()
	return r.PostForm.Get(service.FieldLogin), r.PostForm.Get(service.FieldPassword)
}

func (h *PortalHandlers) writeToken(w http.ResponseWriter, token string, policy domainportal.OAuth2Policy) {
	expires := int(policy.TokenTTL.Seconds())
	if policy.TokenReturnType == domainportal.TokenReturnHeader ||
		policy.TokenReturnType == domainportal.TokenReturnBoth {
		w.Header().Set("X-Auth-Token", token)
		w.Header().Set("X-Auth-Token-Expires", strconv.Itoa(expires))
	}
	if policy.TokenReturnType == domainportal.TokenReturnHeader {
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"scope":        policy.Scope,
		"expires_in":   expires,
	})
}

// Logout destroys the portal session and clears the cookie.
func (h *PortalHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	ctx := r.Context()

	cookie := requestCookie(r)
	if cookie != "" {
		sess := service.NewPortalSession(h.Sessions, h.Encryptor, cookie)
		if err := sess.Destroy(ctx); err != nil {
			h.Logger.ErrorContext(ctx, "destroy session", "error", err)
		}
	}
	http.SetCookie(w, expiredSessionCookie(r))
	http.Redirect(w, r, "/portal/"+wf.ID, http.StatusFound)
}

func (h *PortalHandlers) redirectAuthenticated(w http.ResponseWriter, r *http.Request, a *service.Authentication) {
	ctx := r.Context()
	target, err := a.RedirectURL(ctx)
	if err != nil || target == "" {
		target = a.Workflow().PublicDir
	}
	if target == "" {
		target = "/"
	}
	http.SetCookie(w, sessionCookie(r, a.Session().Cookie(), a.Workflow().Authentication.AuthTimeout))
	http.Redirect(w, r, target, http.StatusFound)
}

// renderChallenge emits the challenge for the workflow's strategy:
// an HTML form for form auth, 401 with the matching WWW-Authenticate
// header for basic and kerberos.
func (h *PortalHandlers) renderChallenge(w http.ResponseWriter, r *http.Request, a *service.Authentication, errMsg string) {
	ctx := r.Context()
	wf := a.Workflow()
	switch wf.Authentication.AuthType {
	case domainportal.AuthTypeBasic:
		w.Header().Set("WWW-Authenticate", `Basic realm="`+wf.Name+`"`)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case domainportal.AuthTypeKerberos:
		w.Header().Set("WWW-Authenticate", "Negotiate")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	default:
		var captcha string
		if wf.Authentication.EnableCaptcha && h.Captcha != nil {
			token, err := a.CreateCaptcha(ctx, h.Captcha)
			if err != nil {
				h.fail(w, r, &wf, err)
				return
			}
			captcha = token
		}
		http.SetCookie(w, sessionCookie(r, a.Session().Cookie(), wf.Authentication.AuthTimeout))
		renderTemplate(w, h.Logger, renderParams{
			name:   "login",
			status: http.StatusOK,
			data:   newLoginData(wf.Name, r.URL.Path, errMsg, captcha),
		})
	}
}

// renderAuthFailure maps a primary authentication error to the right
// user-facing response: a fresh challenge with the failure message, or
// a forbidden page for ACL denials.
func (h *PortalHandlers) renderAuthFailure(w http.ResponseWriter, r *http.Request, a *service.Authentication, err error) {
	wf := a.Workflow()
	switch {
	case apperrors.IsACL(err):
		renderTemplate(w, h.Logger, renderParams{
			name:   "message",
			status: http.StatusForbidden,
			data:   messageData{WorkflowName: wf.Name, Message: userMessage(err)},
		})
	case apperrors.IsCredentials(err), apperrors.IsAuthentication(err), apperrors.IsOTP(err):
		h.renderChallenge(w, r, a, userMessage(err))
	default:
		h.fail(w, r, &wf, err)
	}
}

func (h *PortalHandlers) renderOTPFailure(w http.ResponseWriter, r *http.Request, wf *domainportal.Workflow, d *service.DoubleAuthentication, err error) {
	if !apperrors.IsCredentials(err) && !apperrors.IsAuthentication(err) && !apperrors.IsOTP(err) {
		h.fail(w, r, wf, err)
		return
	}
	challenge := ""
	if d != nil {
		challenge = d.Challenge()
	}
	renderTemplate(w, h.Logger, renderParams{
		name:   "otp",
		status: http.StatusUnauthorized,
		data:   newOTPData(wf.Name, r.URL.Path, userMessage(err), challenge),
	})
}

func (h *PortalHandlers) fail(w http.ResponseWriter, r *http.Request, wf *domainportal.Workflow, err error) {
	h.Logger.ErrorContext(r.Context(), "portal flow failed",
		"workflow", wf.ID, "error", err)
	renderTemplate(w, h.Logger, renderParams{
		name:   "message",
		status: http.StatusInternalServerError,
		data:   messageData{WorkflowName: wf.Name, Message: "An error occurred, please try again later."},
	})
}

// userMessage extracts the user-safe message from a taxonomy error.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "authentication failed"
}
