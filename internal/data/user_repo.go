package data

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/guardgate/portal/internal/data/pgxutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// UserRepo provides CRUD operations for the internal user database.
// Passwords are stored as bcrypt hashes and never leave this package in
// plaintext.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

func userColumns() string {
	return "id, login, password_hash, email, phone, locked, password_expires, created_at, updated_at"
}

// GetByLogin returns the user with the given login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*domainportal.User, error) {
	var u domainportal.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			"SELECT "+userColumns()+" FROM users WHERE login = $1", login)
		if err != nil {
			return err
		}
		defer rows.Close()
		u, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainportal.User])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &u, nil
}

// CreateUserRequest carries the fields needed to provision an account.
type CreateUserRequest struct {
	Login    string
	Password string
	Email    string
	Phone    string
}

// Create provisions an account, hashing the password with bcrypt.
func (r *UserRepo) Create(ctx context.Context, req CreateUserRequest) (*domainportal.User, error) {
	if req.Login == "" || req.Password == "" {
		return nil, apperrors.Validation("login and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "hash password")
	}
	var u domainportal.User
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO users (login, password_hash, email, phone)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			RETURNING `+userColumns(),
			req.Login, string(hash), req.Email, req.Phone)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		u, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainportal.User])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &u, nil
}

// SetLocked toggles the account lock flag.
func (r *UserRepo) SetLocked(ctx context.Context, login string, locked bool) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx,
			"UPDATE users SET locked = $2, updated_at = now() WHERE login = $1", login, locked)
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// SetPassword rotates the account password.
func (r *UserRepo) SetPassword(ctx context.Context, login, password string) error {
	if password == "" {
		return apperrors.Validation("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "hash password")
	}
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, password_expires = NULL, updated_at = now()
			WHERE login = $1`, login, string(hash))
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// List returns accounts ordered by login.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*domainportal.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var users []*domainportal.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx,
			"SELECT "+userColumns()+" FROM users ORDER BY login LIMIT $1 OFFSET $2", limit, offset)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		users, qerr = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domainportal.User])
		return qerr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return users, nil
}

// Delete removes an account. It reports whether a row was deleted.
func (r *UserRepo) Delete(ctx context.Context, login string) (bool, error) {
	var deleted bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, "DELETE FROM users WHERE login = $1", login)
		if execErr != nil {
			return execErr
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return deleted, nil
}

// CheckPassword verifies a plaintext password against the stored hash.
func CheckPassword(u *domainportal.User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return apperrors.Authentication("invalid credentials")
	}
	return nil
}
