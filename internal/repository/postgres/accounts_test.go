package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/repository"
)

func TestAccountRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	account := domain.Account{
		ID:           "acc-1",
		Kind:         domain.AccountKindDoctor,
		IdentityKey:  "DR001",
		Name:         "Zhang Wei",
		Email:        "zhang.wei@hospital.example",
		Department:   "Radiology",
		PasswordHash: "argon2id$v=19$m=65536,t=3,p=4$salt$hash",
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO med\.accounts`).
		WithArgs(
			account.ID,
			account.Kind,
			account.IdentityKey,
			account.Name,
			account.Email,
			account.Department,
			account.PasswordHash,
			account.LoginAttempts,
			(*time.Time)(nil),
			account.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	lockedUntil := createdAt.Add(30 * time.Minute)

	rows := pgxmock.NewRows([]string{
		"id", "kind", "identity_key", "name", "email", "department", "password_hash", "login_attempts", "locked_until", "created_at",
	}).AddRow(
		"acc-1", domain.AccountKindDoctor, "DR001", "Zhang Wei", "zhang.wei@hospital.example", "Radiology", "hash", 5, &lockedUntil, createdAt,
	)

	mock.ExpectQuery(`SELECT .*FROM med\.accounts`).
		WithArgs("DR001", domain.AccountKindDoctor).
		WillReturnRows(rows)

	account, err := repo.GetByIdentity(context.Background(), domain.AccountKindDoctor, "DR001")
	if err != nil {
		t.Fatalf("GetByIdentity returned error: %v", err)
	}
	if account.ID != "acc-1" || account.LoginAttempts != 5 {
		t.Fatalf("unexpected account: %+v", account)
	}
	if account.LockedUntil == nil || !account.LockedUntil.Equal(lockedUntil) {
		t.Fatal("expected locked_until populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIdentityNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM med\.accounts`).
		WithArgs("missing", domain.AccountKindAdmin).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "identity_key", "name", "email", "department", "password_hash", "login_attempts", "locked_until", "created_at",
		}))

	if _, err := repo.GetByIdentity(context.Background(), domain.AccountKindAdmin, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountRepository_UpdateLockState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	lockedUntil := time.Now().UTC().Add(30 * time.Minute)
	account := domain.Account{ID: "acc-1", LoginAttempts: 5, LockedUntil: &lockedUntil}

	mock.ExpectExec(`UPDATE med\.accounts`).
		WithArgs(account.LoginAttempts, account.LockedUntil, account.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateLockState(context.Background(), account); err != nil {
		t.Fatalf("UpdateLockState returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_UpdateLockStateMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`UPDATE med\.accounts`).
		WithArgs(1, (*time.Time)(nil), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateLockState(context.Background(), domain.Account{ID: "ghost", LoginAttempts: 1})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
