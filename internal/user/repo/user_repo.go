package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/utilities"
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	constraintHandle = "accounts_handle_key"
	constraintEmail  = "accounts_email_key"

	accountColumns = `id, display_name, handle, email, password_hash, role, profile_complete, created_at, updated_at`
)

// UserRepo provides data access for the accounts table using sqlx.
type UserRepo struct {
	db  *sqlx.DB
	ids *utilities.IDGenerator
}

func NewUserRepo(db *sqlx.DB, ids *utilities.IDGenerator) *UserRepo {
	return &UserRepo{db: db, ids: ids}
}

// EnsureTable creates the accounts table if not exists (idempotent).
// The named unique constraints are what Insert relies on for conflict detection.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL DEFAULT '',
  handle TEXT NOT NULL,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  profile_complete BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT accounts_handle_key UNIQUE (handle),
  CONSTRAINT accounts_email_key UNIQUE (email),
  CONSTRAINT accounts_role_check CHECK (role IN ('user', 'admin'))
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert writes a new account row in a single statement.
func (r *UserRepo) Insert(ctx context.Context, candidate *entity.Account) (*entity.Account, error) {
	if !candidate.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", candidate.Role)
	}
	a := *candidate
	if a.ID == "" {
		a.ID = r.ids.Next()
	}
	const q = `INSERT INTO accounts (id, display_name, handle, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING profile_complete, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, q, a.ID, a.DisplayName, a.Handle, a.Email, a.PasswordHash, string(a.Role))
	if err := row.Scan(&a.ProfileComplete, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapInsertErr(err)
	}
	return &a, nil
}

func mapInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case constraintEmail:
			return ErrDuplicateEmail
		case constraintHandle:
			return ErrDuplicateHandle
		}
	}
	return fmt.Errorf("db error: %w", err)
}

// FindByHandleOrEmail returns the email match first when both keys collide with different rows.
func (r *UserRepo) FindByHandleOrEmail(ctx context.Context, handle, email string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts
		WHERE email = $1 OR handle = $2
		ORDER BY (email = $1) DESC
		LIMIT 1`
	return r.get(ctx, q, email, handle)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.get(ctx, q, email)
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.get(ctx, q, id)
}

// UpdateRole sets the role in one UPDATE ... RETURNING statement.
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role entity.Role) (*entity.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	const q = `UPDATE accounts SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + accountColumns
	return r.get(ctx, q, id, string(role))
}

func (r *UserRepo) List(ctx context.Context) ([]*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`
	var rows []*entity.Account
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rows, nil
}

func (r *UserRepo) get(ctx context.Context, q string, args ...any) (*entity.Account, error) {
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &a, nil
}
