package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

// SequenceRepository implements port.SequenceRepository using PostgreSQL.
type SequenceRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSequenceRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewSequenceRepository(exec pgExecutor) *SequenceRepository {
	repo := &SequenceRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new sequence row and returns the generated id.
func (r *SequenceRepository) Create(ctx context.Context, seq domain.MRISequence) (int64, error) {
	stmt, args, err := r.builder.Insert("med.mri_sequences").
		Columns("patient_id", "name", "folder_path", "created_at").
		Values(seq.PatientID, seq.Name, seq.FolderPath, seq.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert sequence sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert sequence: %w", mapWriteError(err))
	}

	return id, nil
}

// GetByID retrieves a sequence by identifier.
func (r *SequenceRepository) GetByID(ctx context.Context, id int64) (*domain.MRISequence, error) {
	stmt, args, err := r.selectSequences().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sequence sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByPatientAndName retrieves a sequence by its per-patient unique name.
func (r *SequenceRepository) GetByPatientAndName(ctx context.Context, patientID int64, name string) (*domain.MRISequence, error) {
	stmt, args, err := r.selectSequences().
		Where(squirrel.Eq{"patient_id": patientID, "name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sequence by name sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// ListByPatient returns all sequences for a patient, newest first.
func (r *SequenceRepository) ListByPatient(ctx context.Context, patientID int64) ([]domain.MRISequence, error) {
	stmt, args, err := r.selectSequences().
		Where(squirrel.Eq{"patient_id": patientID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sequences sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()

	sequences := make([]domain.MRISequence, 0)
	for rows.Next() {
		var seq domain.MRISequence
		if err := rows.Scan(&seq.ID, &seq.PatientID, &seq.Name, &seq.FolderPath, &seq.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		sequences = append(sequences, seq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequences: %w", err)
	}

	return sequences, nil
}

// Delete removes a sequence row. Predictions cascade in the schema.
func (r *SequenceRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Delete("med.mri_sequences").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sequence sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete sequence: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *SequenceRepository) selectSequences() squirrel.SelectBuilder {
	return r.builder.Select("id", "patient_id", "name", "folder_path", "created_at").
		From("med.mri_sequences")
}

func (r *SequenceRepository) scanOne(row pgx.Row) (*domain.MRISequence, error) {
	var seq domain.MRISequence
	if err := row.Scan(&seq.ID, &seq.PatientID, &seq.Name, &seq.FolderPath, &seq.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan sequence: %w", err)
	}
	return &seq, nil
}

var _ port.SequenceRepository = (*SequenceRepository)(nil)
