package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

// PatientRepository implements port.PatientRepository using PostgreSQL.
type PatientRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPatientRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewPatientRepository(exec pgExecutor) *PatientRepository {
	repo := &PatientRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new patient row and returns the generated id.
func (r *PatientRepository) Create(ctx context.Context, patient domain.Patient) (int64, error) {
	var photoValue any
	if patient.PhotoPath != nil && *patient.PhotoPath != "" {
		photoValue = *patient.PhotoPath
	}

	stmt, args, err := r.builder.Insert("med.patients").
		Columns("id_card", "name", "gender", "photo_path", "created_at").
		Values(patient.IDCard, patient.Name, patient.Gender, photoValue, patient.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert patient sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert patient: %w", mapWriteError(err))
	}

	return id, nil
}

// GetByID retrieves a patient by identifier.
func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*domain.Patient, error) {
	stmt, args, err := r.selectPatients().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select patient sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIDCard retrieves a patient by national id number.
func (r *PatientRepository) GetByIDCard(ctx context.Context, idCard string) (*domain.Patient, error) {
	stmt, args, err := r.selectPatients().
		Where(squirrel.Eq{"id_card": idCard}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select patient by id card sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// List returns one page of patients plus the unpaged total.
func (r *PatientRepository) List(ctx context.Context, search string, offset, limit int) ([]domain.Patient, int, error) {
	countQuery := r.builder.Select("COUNT(*)").From("med.patients")
	listQuery := r.selectPatients().OrderBy("created_at DESC", "id DESC")

	if search != "" {
		pattern := "%" + search + "%"
		filter := squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.Like{"id_card": pattern},
		}
		countQuery = countQuery.Where(filter)
		listQuery = listQuery.Where(filter)
	}

	stmt, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count patients sql: %w", err)
	}

	var total int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("scan patients count: %w", err)
	}

	if limit > 0 {
		listQuery = listQuery.Limit(uint64(limit))
	}
	if offset > 0 {
		listQuery = listQuery.Offset(uint64(offset))
	}

	stmt, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list patients sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	patients := make([]domain.Patient, 0)
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, *patient)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}

	return patients, int(total), nil
}

// Update modifies an existing patient's fields.
func (r *PatientRepository) Update(ctx context.Context, patient domain.Patient) error {
	var photoValue any
	if patient.PhotoPath != nil && *patient.PhotoPath != "" {
		photoValue = *patient.PhotoPath
	}

	stmt, args, err := r.builder.Update("med.patients").
		Set("id_card", patient.IDCard).
		Set("name", patient.Name).
		Set("gender", patient.Gender).
		Set("photo_path", photoValue).
		Where(squirrel.Eq{"id": patient.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update patient sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update patient: %w", mapWriteError(err))
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a patient row. Sequences and predictions cascade in
// the schema.
func (r *PatientRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Delete("med.patients").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete patient sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PatientRepository) selectPatients() squirrel.SelectBuilder {
	return r.builder.Select("id", "id_card", "name", "gender", "photo_path", "created_at").
		From("med.patients")
}

func (r *PatientRepository) scanOne(row pgx.Row) (*domain.Patient, error) {
	patient, err := scanPatient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return patient, nil
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var (
		patient domain.Patient
		photo   sql.NullString
	)

	if err := row.Scan(
		&patient.ID,
		&patient.IDCard,
		&patient.Name,
		&patient.Gender,
		&photo,
		&patient.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}

	if photo.Valid {
		val := photo.String
		patient.PhotoPath = &val
	}

	return &patient, nil
}

var _ port.PatientRepository = (*PatientRepository)(nil)
