package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

const predictionResultDir = "predictions"

var (
	// ErrPredictionNotFound indicates no prediction exists for the id,
	// or a compare request matched none of its ids.
	ErrPredictionNotFound = errors.New("prediction not found")
	// ErrSourceImageNotFound indicates the referenced slice is not
	// present in the sequence directory.
	ErrSourceImageNotFound = errors.New("source image not found in sequence")
)

// CreatePredictionInput identifies the slice a prediction is run on.
// ProstateRegion and NeedlePositions are passed through to the model
// runner; inference itself is out of scope here.
type CreatePredictionInput struct {
	SequenceID      int64
	ImagePath       string
	ProstateRegion  map[string]any
	NeedlePositions []map[string]any
}

// PredictionService records model runs against sequence slices. The
// model invocation is a stub: the service reserves the result path and
// stores the record, leaving inference to an external runner.
type PredictionService struct {
	predictions port.PredictionRepository
	sequences   port.SequenceRepository
	files       port.FileStore
	events      port.EventPublisher
	log         *zap.Logger

	now func() time.Time
}

// NewPredictionService constructs a PredictionService instance.
func NewPredictionService(predictions port.PredictionRepository, sequences port.SequenceRepository, files port.FileStore, events port.EventPublisher, log *zap.Logger) *PredictionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PredictionService{
		predictions: predictions,
		sequences:   sequences,
		files:       files,
		events:      events,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *PredictionService) WithClock(now func() time.Time) *PredictionService {
	s.now = now
	return s
}

// Create validates the sequence and source slice and stores the
// prediction record pointing at the reserved result path.
func (s *PredictionService) Create(ctx context.Context, input CreatePredictionInput) (*domain.PredRecord, error) {
	if input.ImagePath == "" {
		return nil, &ValidationError{Field: "image_path", Rule: "required", Message: "image path is required"}
	}

	sequence, err := s.sequences.GetByID(ctx, input.SequenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, fmt.Errorf("load sequence: %w", err)
	}

	if err := s.checkSourceImage(ctx, sequence.FolderPath, input.ImagePath); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := domain.PredRecord{
		SequenceID: sequence.ID,
		ResultPath: path.Join(predictionResultDir, fmt.Sprintf("prediction_%d_%s", sequence.ID, path.Base(input.ImagePath))),
		PredTime:   now,
	}

	id, err := s.predictions.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create prediction record: %w", err)
	}
	record.ID = id

	if s.events != nil {
		_ = s.events.PublishPredictionCreated(ctx, domain.PredictionCreatedEvent{
			RecordID:   record.ID,
			SequenceID: sequence.ID,
			PatientID:  sequence.PatientID,
			CreatedAt:  now,
		})
	}

	return &record, nil
}

// Get returns one prediction record.
func (s *PredictionService) Get(ctx context.Context, id int64) (*domain.PredRecord, error) {
	record, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPredictionNotFound
		}
		return nil, fmt.Errorf("load prediction: %w", err)
	}
	return record, nil
}

// ListBySequence returns every prediction recorded for the sequence.
func (s *PredictionService) ListBySequence(ctx context.Context, sequenceID int64) ([]domain.PredRecord, error) {
	if _, err := s.sequences.GetByID(ctx, sequenceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, fmt.Errorf("load sequence: %w", err)
	}

	records, err := s.predictions.ListBySequence(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return records, nil
}

// Compare loads the named predictions side by side. Unknown ids are
// skipped; a request matching none is an error.
func (s *PredictionService) Compare(ctx context.Context, ids []int64) ([]domain.PredRecord, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "prediction_ids", Rule: "required", Message: "prediction id list is required"}
	}

	records := make([]domain.PredRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.predictions.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load prediction %d: %w", id, err)
		}
		records = append(records, *record)
	}

	if len(records) == 0 {
		return nil, ErrPredictionNotFound
	}
	return records, nil
}

// checkSourceImage confirms the slice exists inside the sequence folder.
func (s *PredictionService) checkSourceImage(ctx context.Context, folder, imagePath string) error {
	names, err := s.files.List(ctx, folder)
	if err != nil {
		return fmt.Errorf("list sequence files: %w", err)
	}

	base := path.Base(imagePath)
	for _, name := range names {
		if path.Base(name) == base {
			return nil
		}
	}
	return ErrSourceImageNotFound
}
