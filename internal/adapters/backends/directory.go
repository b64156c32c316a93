package backends

// Package backends wires repository descriptors to their concrete
// authenticators. The directory is built once at startup and read-only
// afterwards.

import (
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// Entry pairs a repository descriptor with its providers. Exactly the
// providers matching the repository kind should be set.
type Entry struct {
	Repository    domainportal.Repository
	Authenticator ports.Authenticator
	Token         ports.TokenAuthenticator
	OTP           ports.OTPProvider
}

// Directory implements ports.BackendDirectory over a static map.
type Directory struct {
	entries map[string]Entry
}

// NewDirectory builds a directory from entries, keyed by repository id.
func NewDirectory(entries []Entry) *Directory {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Repository.ID] = e
	}
	return &Directory{entries: m}
}

func (d *Directory) entry(id string) (Entry, error) {
	e, ok := d.entries[id]
	if !ok {
		return Entry{}, apperrors.NotFoundf("repository %q is not configured", id)
	}
	return e, nil
}

// Repository returns the descriptor for a repository id.
func (d *Directory) Repository(id string) (domainportal.Repository, error) {
	e, err := d.entry(id)
	if err != nil {
		return domainportal.Repository{}, err
	}
	return e.Repository, nil
}

// Authenticator returns the login/secret authenticator for a repository.
func (d *Directory) Authenticator(id string) (ports.Authenticator, error) {
	e, err := d.entry(id)
	if err != nil {
		return nil, err
	}
	if e.Authenticator == nil {
		return nil, apperrors.Validationf("repository %s does not authenticate credentials", e.Repository.String())
	}
	return e.Authenticator, nil
}

// TokenAuthenticator returns the token acceptor for a repository.
func (d *Directory) TokenAuthenticator(id string) (ports.TokenAuthenticator, error) {
	e, err := d.entry(id)
	if err != nil {
		return nil, err
	}
	if e.Token == nil {
		return nil, apperrors.Validationf("repository %s does not accept tokens", e.Repository.String())
	}
	return e.Token, nil
}

// OTPProvider returns the one-time-key provider for a repository.
func (d *Directory) OTPProvider(id string) (ports.OTPProvider, error) {
	e, err := d.entry(id)
	if err != nil {
		return nil, err
	}
	if e.OTP == nil {
		return nil, apperrors.Validationf("repository %s is not an otp repository", e.Repository.String())
	}
	return e.OTP, nil
}
