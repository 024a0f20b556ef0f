package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert("med.accounts").
		Columns(
			"id",
			"kind",
			"identity_key",
			"name",
			"email",
			"department",
			"password_hash",
			"login_attempts",
			"locked_until",
			"created_at",
		).
		Values(
			account.ID,
			account.Kind,
			account.IdentityKey,
			account.Name,
			account.Email,
			account.Department,
			account.PasswordHash,
			account.LoginAttempts,
			account.LockedUntil,
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert account: %w", mapWriteError(err))
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentity retrieves an account by kind and identity key.
func (r *AccountRepository) GetByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"kind": kind, "identity_key": identityKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by identity sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// ExistsByIdentity reports whether an account exists for the identity key.
func (r *AccountRepository) ExistsByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("med.accounts").
		Where(squirrel.Eq{"kind": kind, "identity_key": identityKey}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists account sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("scan account existence: %w", err)
	}
	return true, nil
}

// UpdateLockState persists the failed-attempt counter and lock deadline.
func (r *AccountRepository) UpdateLockState(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Update("med.accounts").
		Set("login_attempts", account.LoginAttempts).
		Set("locked_until", account.LockedUntil).
		Where(squirrel.Eq{"id": account.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update lock state sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update lock state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) selectAccounts() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"kind",
		"identity_key",
		"name",
		"email",
		"department",
		"password_hash",
		"login_attempts",
		"locked_until",
		"created_at",
	).From("med.accounts")
}

func (r *AccountRepository) scanOne(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		lockedUntil *time.Time
	)

	if err := row.Scan(
		&account.ID,
		&account.Kind,
		&account.IdentityKey,
		&account.Name,
		&account.Email,
		&account.Department,
		&account.PasswordHash,
		&account.LoginAttempts,
		&lockedUntil,
		&account.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.LockedUntil = lockedUntil
	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
