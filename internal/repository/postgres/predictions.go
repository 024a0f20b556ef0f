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

// PredictionRepository implements port.PredictionRepository using PostgreSQL.
type PredictionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPredictionRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewPredictionRepository(exec pgExecutor) *PredictionRepository {
	repo := &PredictionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create inserts a new prediction record and returns the generated id.
func (r *PredictionRepository) Create(ctx context.Context, rec domain.PredRecord) (int64, error) {
	stmt, args, err := r.builder.Insert("med.pred_records").
		Columns("sequence_id", "result_path", "pred_time").
		Values(rec.SequenceID, rec.ResultPath, rec.PredTime).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert prediction sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert prediction: %w", mapWriteError(err))
	}

	return id, nil
}

// GetByID retrieves a prediction record by identifier.
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*domain.PredRecord, error) {
	stmt, args, err := r.builder.Select("id", "sequence_id", "result_path", "pred_time").
		From("med.pred_records").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select prediction sql: %w", err)
	}

	var rec domain.PredRecord
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&rec.ID, &rec.SequenceID, &rec.ResultPath, &rec.PredTime); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan prediction: %w", err)
	}

	return &rec, nil
}

// ListBySequence returns all prediction records for a sequence, newest first.
func (r *PredictionRepository) ListBySequence(ctx context.Context, sequenceID int64) ([]domain.PredRecord, error) {
	stmt, args, err := r.builder.Select("id", "sequence_id", "result_path", "pred_time").
		From("med.pred_records").
		Where(squirrel.Eq{"sequence_id": sequenceID}).
		OrderBy("pred_time DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list predictions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	records := make([]domain.PredRecord, 0)
	for rows.Next() {
		var rec domain.PredRecord
		if err := rows.Scan(&rec.ID, &rec.SequenceID, &rec.ResultPath, &rec.PredTime); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}

	return records, nil
}

var _ port.PredictionRepository = (*PredictionRepository)(nil)
