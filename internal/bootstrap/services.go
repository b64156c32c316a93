package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/guardgate/portal/config"
	"github.com/guardgate/portal/internal/adapters/backends"
	"github.com/guardgate/portal/internal/adapters/captcha"
	"github.com/guardgate/portal/internal/adapters/internalauth"
	"github.com/guardgate/portal/internal/adapters/kerberosauth"
	"github.com/guardgate/portal/internal/adapters/ldapauth"
	"github.com/guardgate/portal/internal/adapters/otp"
	redisadapter "github.com/guardgate/portal/internal/adapters/redis"
	"github.com/guardgate/portal/internal/data"
	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	"github.com/guardgate/portal/internal/ports"
)

// ServiceContainer holds the portal's wired dependencies.
type ServiceContainer struct {
	Users     *data.UserRepo
	Workflows *data.WorkflowRepo
	Sessions  ports.SessionStore
	Backends  ports.BackendDirectory
	Encryptor cryptoutil.Encryptor
	Captcha   ports.ChallengeProvider
}

// ServicesConfig contains dependencies for building the service container.
type ServicesConfig struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  goredis.UniversalClient
	Logger *slog.Logger
}

// BuildServices wires repositories, the session store, and the backend
// directory. Repository definitions are read once at startup; a config
// change requires a restart.
func BuildServices(ctx context.Context, cfg ServicesConfig) (ServiceContainer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	users := data.NewUserRepo(cfg.DB)
	workflows := data.NewWorkflowRepo(cfg.DB)

	repos, err := workflows.ListRepositories(ctx)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load repositories: %w", err)
	}
	directory, err := buildDirectory(directoryConfig{
		Config: cfg.Config,
		Users:  users,
		Repos:  repos,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Users:     users,
		Workflows: workflows,
		Sessions:  redisadapter.NewSessionStore(cfg.Redis),
		Backends:  directory,
		Encryptor: CreateEncryptor(cfg.Config.SessionEncryptionKey, logger),
		Captcha:   captcha.NewProvider(),
	}, nil
}

type directoryConfig struct {
	Config *config.AppConfig
	Users  *data.UserRepo
	Repos  []domainportal.Repository
	Logger *slog.Logger
}

func buildDirectory(cfg directoryConfig) (*backends.Directory, error) {
	entries := make([]backends.Entry, 0, len(cfg.Repos))
	for _, repo := range cfg.Repos {
		entry, err := buildEntry(cfg, repo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return backends.NewDirectory(entries), nil
}

func buildEntry(cfg directoryConfig, repo domainportal.Repository) (backends.Entry, error) {
	entry := backends.Entry{Repository: repo}
	switch repo.Kind {
	case domainportal.RepoKindInternal:
		entry.Authenticator = internalauth.NewProvider(cfg.Users, cfg.Logger)

	case domainportal.RepoKindLDAP:
		if !cfg.Config.LDAP.IsConfigured() {
			return entry, fmt.Errorf("repository %s needs LDAP_URL and LDAP_BASE_DN", repo.String())
		}
		entry.Authenticator = ldapauth.NewProvider(ldapauth.Config{
			URL:             cfg.Config.LDAP.URL,
			BindDN:          cfg.Config.LDAP.BindDN,
			BindPassword:    cfg.Config.LDAP.BindPassword,
			BaseDN:          cfg.Config.LDAP.BaseDN,
			LoginAttribute:  cfg.Config.LDAP.LoginAttribute,
			EmailAttribute:  cfg.Config.LDAP.EmailAttribute,
			PhoneAttribute:  cfg.Config.LDAP.PhoneAttribute,
			MemberAttribute: cfg.Config.LDAP.MemberAttribute,
			RequiredGroups:  cfg.Config.LDAP.RequiredGroups,
			DialTimeout:     cfg.Config.LDAP.DialTimeout,
		}, cfg.Logger)

	case domainportal.RepoKindKerberos:
		if !cfg.Config.Kerberos.IsConfigured() {
			return entry, fmt.Errorf("repository %s needs KRB_KEYTAB_FILE", repo.String())
		}
		provider, err := kerberosauth.NewProvider(kerberosauth.Config{
			KeytabFile:       cfg.Config.Kerberos.KeytabFile,
			ServicePrincipal: cfg.Config.Kerberos.ServicePrincipal,
			Realm:            cfg.Config.Kerberos.Realm,
		}, cfg.Logger)
		if err != nil {
			return entry, fmt.Errorf("kerberos repository %s: %w", repo.String(), err)
		}
		entry.Token = provider

	case domainportal.RepoKindOTP:
		provider, err := buildOTPProvider(cfg, repo)
		if err != nil {
			return entry, err
		}
		entry.OTP = provider
	}
	return entry, nil
}

func buildOTPProvider(cfg directoryConfig, repo domainportal.Repository) (ports.OTPProvider, error) {
	if repo.OTP == nil {
		return nil, fmt.Errorf("repository %s has no otp configuration", repo.String())
	}
	switch repo.OTP.Type {
	case domainportal.OTPTypePhone:
		if !cfg.Config.SMS.IsConfigured() {
			return nil, fmt.Errorf("repository %s needs SMS_WEBHOOK_URL", repo.String())
		}
		sender, err := otp.NewWebhookSMSSender(otp.WebhookSMSConfig{
			WebhookURL: cfg.Config.SMS.WebhookURL,
			APIKey:     cfg.Config.SMS.APIKey,
			Timeout:    cfg.Config.SMS.Timeout,
			RetryLimit: cfg.Config.SMS.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("sms repository %s: %w", repo.String(), err)
		}
		return otp.NewSMSProvider(otp.SMSProviderOptions{Sender: sender, Logger: cfg.Logger}), nil

	case domainportal.OTPTypeTOTP:
		return otp.NewTOTPProvider(cfg.Config.Portal.TOTPIssuer, cfg.Logger), nil

	default:
		return otp.NewEmailProvider(otp.EmailProviderOptions{
			Mail: otp.NewSMTPSender(otp.SMTPConfig{
				Addr:        cfg.Config.Mail.Addr,
				Username:    cfg.Config.Mail.Username,
				Password:    cfg.Config.Mail.Password,
				ImplicitTLS: cfg.Config.Mail.ImplicitTLS,
			}),
			From:      cfg.Config.Mail.From,
			KeyLength: cfg.Config.Portal.OTPKeyLength,
			Logger:    cfg.Logger,
		}), nil
	}
}
