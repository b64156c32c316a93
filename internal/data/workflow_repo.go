package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/guardgate/portal/internal/data/pgxutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// WorkflowRepo loads workflow and repository definitions. The portal
// treats these as configuration: reads dominate, writes happen through
// the admin CLI.
type WorkflowRepo struct {
	DB *sql.DB
}

// NewWorkflowRepo creates a new WorkflowRepo.
func NewWorkflowRepo(db *sql.DB) *WorkflowRepo {
	return &WorkflowRepo{DB: db}
}

// workflowRow is the flat scan target; domain assembly happens in toDomain.
type workflowRow struct {
	ID              string   `db:"id"`
	Name            string   `db:"name"`
	RedirectURI     string   `db:"redirect_uri"`
	TemplateID      string   `db:"template_id"`
	PublicDir       string   `db:"public_dir"`
	AuthEnabled     bool     `db:"auth_enabled"`
	AuthType        string   `db:"auth_type"`
	RepositoryID    *string  `db:"repository_id"`
	FallbackIDs     []string `db:"fallback_ids"`
	OTPRepositoryID *string  `db:"otp_repository_id"`
	AuthTimeoutSecs int      `db:"auth_timeout_seconds"`
	EnableCaptcha   bool     `db:"enable_captcha"`
	OTPMaxRetry     int      `db:"otp_max_retry"`
	EmailFrom       string   `db:"email_from"`
}

func workflowColumns() string {
	return `id, name, redirect_uri, template_id, public_dir,
		auth_enabled, auth_type, repository_id, fallback_ids,
		otp_repository_id, auth_timeout_seconds, enable_captcha,
		otp_max_retry, email_from`
}

func (row workflowRow) toDomain() (*domainportal.Workflow, error) {
	wf := &domainportal.Workflow{
		ID:          row.ID,
		Name:        row.Name,
		RedirectURI: row.RedirectURI,
		TemplateID:  row.TemplateID,
		PublicDir:   row.PublicDir,
	}
	if !row.AuthEnabled {
		return wf, nil
	}
	var authType domainportal.AuthType
	if err := authType.UnmarshalText([]byte(row.AuthType)); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation,
			"workflow %s has invalid auth type", row.ID)
	}
	policy := &domainportal.AuthPolicy{
		Enabled:       true,
		AuthType:      authType,
		FallbackIDs:   row.FallbackIDs,
		AuthTimeout:   time.Duration(row.AuthTimeoutSecs) * time.Second,
		EnableCaptcha: row.EnableCaptcha,
		OTPMaxRetry:   row.OTPMaxRetry,
		EmailFrom:     row.EmailFrom,
	}
	if row.RepositoryID != nil {
		policy.RepositoryID = *row.RepositoryID
	}
	if row.OTPRepositoryID != nil {
		policy.OTPRepositoryID = *row.OTPRepositoryID
	}
	wf.Authentication = policy
	return wf, nil
}

// GetByID returns the workflow with the given id.
func (r *WorkflowRepo) GetByID(ctx context.Context, id string) (*domainportal.Workflow, error) {
	var row workflowRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			"SELECT "+workflowColumns()+" FROM workflows WHERE id = $1", id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		row, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[workflowRow])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return row.toDomain()
}

// List returns all workflows ordered by name.
func (r *WorkflowRepo) List(ctx context.Context) ([]*domainportal.Workflow, error) {
	var rowsOut []workflowRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			"SELECT "+workflowColumns()+" FROM workflows ORDER BY name")
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		rowsOut, qerr = pgx.CollectRows(rows, pgx.RowToStructByName[workflowRow])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	workflows := make([]*domainportal.Workflow, 0, len(rowsOut))
	for _, row := range rowsOut {
		wf, derr := row.toDomain()
		if derr != nil {
			return nil, derr
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

type repositoryRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Kind            string  `db:"kind"`
	OTPType         *string `db:"otp_type"`
	OTPPhoneService *string `db:"otp_phone_service"`
	OTPMaxRetry     int     `db:"otp_max_retry"`
}

func repositoryColumns() string {
	return "id, name, kind, otp_type, otp_phone_service, otp_max_retry"
}

func (row repositoryRow) toDomain() (domainportal.Repository, error) {
	var kind domainportal.RepositoryKind
	if err := kind.UnmarshalText([]byte(row.Kind)); err != nil {
		return domainportal.Repository{}, apperrors.Wrapf(err, apperrors.ErrCodeValidation,
			"repository %s has invalid kind", row.ID)
	}
	repo := domainportal.Repository{ID: row.ID, Name: row.Name, Kind: kind}
	if kind == domainportal.RepoKindOTP && row.OTPType != nil {
		cfg := &domainportal.OTPConfig{
			Type:     domainportal.OTPType(*row.OTPType),
			MaxRetry: row.OTPMaxRetry,
		}
		if row.OTPPhoneService != nil {
			cfg.PhoneService = *row.OTPPhoneService
		}
		repo.OTP = cfg
	}
	return repo, nil
}

// GetRepository returns the repository descriptor with the given id.
func (r *WorkflowRepo) GetRepository(ctx context.Context, id string) (domainportal.Repository, error) {
	var row repositoryRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			"SELECT "+repositoryColumns()+" FROM repositories WHERE id = $1", id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		row, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[repositoryRow])
		return qerr
	})
	if err != nil {
		return domainportal.Repository{}, apperrors.MapDBError(err)
	}
	return row.toDomain()
}

// ListRepositories returns all repository descriptors ordered by name.
func (r *WorkflowRepo) ListRepositories(ctx context.Context) ([]domainportal.Repository, error) {
	var rowsOut []repositoryRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			"SELECT "+repositoryColumns()+" FROM repositories ORDER BY name")
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		rowsOut, qerr = pgx.CollectRows(rows, pgx.RowToStructByName[repositoryRow])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	repos := make([]domainportal.Repository, 0, len(rowsOut))
	for _, row := range rowsOut {
		repo, derr := row.toDomain()
		if derr != nil {
			return nil, derr
		}
		repos = append(repos, repo)
	}
	return repos, nil
}
