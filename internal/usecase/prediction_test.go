package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
)

type recordingPublisher struct {
	registered []domain.AccountRegisteredEvent
	locked     []domain.AccountLockedEvent
	created    []domain.PredictionCreatedEvent
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.locked = append(p.locked, event)
	return nil
}

func (p *recordingPublisher) PublishPredictionCreated(_ context.Context, event domain.PredictionCreatedEvent) error {
	p.created = append(p.created, event)
	return nil
}

func newPredictionFixture(t *testing.T) (*PredictionService, *recordingPublisher, *domain.MRISequence) {
	t.Helper()
	ctx := context.Background()

	patients := newMockPatientRepo()
	sequences := newMockSequenceRepo()
	predictions := newMockPredictionRepo()
	files := newMemFileStore()
	events := &recordingPublisher{}

	patientID, err := patients.Create(ctx, domain.Patient{IDCard: "1101", Name: "Li Na", Gender: domain.GenderFemale})
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	mri := NewMRIService(sequences, patients, files, zap.NewNop())
	sequence, _, err := mri.CreateSequence(ctx, patientID, "T2-axial", dicomUploads("slice_001.dcm"))
	if err != nil {
		t.Fatalf("seed sequence: %v", err)
	}

	svc := NewPredictionService(predictions, sequences, files, events, zap.NewNop())
	return svc, events, sequence
}

func TestPredictionCreate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, events, sequence := newPredictionFixture(t)
	svc.WithClock(func() time.Time { return now })
	ctx := context.Background()

	record, err := svc.Create(ctx, CreatePredictionInput{
		SequenceID: sequence.ID,
		ImagePath:  sequence.FolderPath + "/slice_001.dcm",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if record.ID == 0 || !record.PredTime.Equal(now) {
		t.Fatalf("unexpected record: %+v", record)
	}
	want := "predictions/prediction_1_slice_001.dcm"
	if record.ResultPath != want {
		t.Fatalf("expected result path %q, got %q", want, record.ResultPath)
	}

	if len(events.created) != 1 || events.created[0].SequenceID != sequence.ID {
		t.Fatalf("expected one prediction event, got %+v", events.created)
	}

	got, err := svc.Get(ctx, record.ID)
	if err != nil || got.ResultPath != record.ResultPath {
		t.Fatalf("Get mismatch: %+v err=%v", got, err)
	}
}

func TestPredictionCreateMissingImage(t *testing.T) {
	svc, _, sequence := newPredictionFixture(t)

	_, err := svc.Create(context.Background(), CreatePredictionInput{
		SequenceID: sequence.ID,
		ImagePath:  sequence.FolderPath + "/slice_999.dcm",
	})
	if !errors.Is(err, ErrSourceImageNotFound) {
		t.Fatalf("expected ErrSourceImageNotFound, got %v", err)
	}
}

func TestPredictionCreateUnknownSequence(t *testing.T) {
	svc, _, _ := newPredictionFixture(t)

	_, err := svc.Create(context.Background(), CreatePredictionInput{SequenceID: 404, ImagePath: "x.dcm"})
	if !errors.Is(err, ErrSequenceNotFound) {
		t.Fatalf("expected ErrSequenceNotFound, got %v", err)
	}
}

func TestPredictionListBySequence(t *testing.T) {
	svc, _, sequence := newPredictionFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, CreatePredictionInput{
			SequenceID: sequence.ID,
			ImagePath:  sequence.FolderPath + "/slice_001.dcm",
		}); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	records, err := svc.ListBySequence(ctx, sequence.ID)
	if err != nil {
		t.Fatalf("ListBySequence returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if _, err := svc.ListBySequence(ctx, 404); !errors.Is(err, ErrSequenceNotFound) {
		t.Fatalf("expected ErrSequenceNotFound, got %v", err)
	}
}

func TestPredictionCompare(t *testing.T) {
	svc, _, sequence := newPredictionFixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreatePredictionInput{
		SequenceID: sequence.ID,
		ImagePath:  sequence.FolderPath + "/slice_001.dcm",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// Unknown ids are skipped, known ones returned.
	records, err := svc.Compare(ctx, []int64{first.ID, 404})
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if len(records) != 1 || records[0].ID != first.ID {
		t.Fatalf("unexpected compare result: %+v", records)
	}

	if _, err := svc.Compare(ctx, []int64{404, 405}); !errors.Is(err, ErrPredictionNotFound) {
		t.Fatalf("expected ErrPredictionNotFound, got %v", err)
	}
	var violation *ValidationError
	if _, err := svc.Compare(ctx, nil); !errors.As(err, &violation) {
		t.Fatalf("expected ValidationError for empty id list, got %v", err)
	}
}
