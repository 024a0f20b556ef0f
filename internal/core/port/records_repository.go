package port

import (
	"context"

	"github.com/medscan/hospital-records/internal/core/domain"
)

// PatientRepository exposes persistence behavior for patients.
type PatientRepository interface {
	Create(ctx context.Context, patient domain.Patient) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Patient, error)
	GetByIDCard(ctx context.Context, idCard string) (*domain.Patient, error)
	// List returns one page of patients plus the unpaged total.
	// search matches name or id card as a substring.
	List(ctx context.Context, search string, offset, limit int) ([]domain.Patient, int, error)
	Update(ctx context.Context, patient domain.Patient) error
	Delete(ctx context.Context, id int64) error
}

// SequenceRepository exposes persistence behavior for MRI sequences.
type SequenceRepository interface {
	Create(ctx context.Context, seq domain.MRISequence) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.MRISequence, error)
	GetByPatientAndName(ctx context.Context, patientID int64, name string) (*domain.MRISequence, error)
	ListByPatient(ctx context.Context, patientID int64) ([]domain.MRISequence, error)
	Delete(ctx context.Context, id int64) error
}

// PredictionRepository exposes persistence behavior for prediction records.
type PredictionRepository interface {
	Create(ctx context.Context, rec domain.PredRecord) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.PredRecord, error)
	ListBySequence(ctx context.Context, sequenceID int64) ([]domain.PredRecord, error)
}
