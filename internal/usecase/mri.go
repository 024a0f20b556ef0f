package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

var (
	// ErrSequenceNotFound indicates no sequence exists for the id.
	ErrSequenceNotFound = errors.New("mri sequence not found")
	// ErrSequenceExists indicates the patient already has a sequence
	// with that name.
	ErrSequenceExists = errors.New("sequence name already exists for patient")
	// ErrNoValidFiles indicates the upload contained no DICOM files.
	ErrNoValidFiles = errors.New("no valid dicom files in upload")

	dicomExtensions = map[string]struct{}{".dcm": {}, ".dicom": {}}
)

// SequenceFile is one stored slice of a sequence.
type SequenceFile struct {
	Name string
	Path string
}

// MRIService manages DICOM sequence uploads and their directories.
type MRIService struct {
	sequences port.SequenceRepository
	patients  port.PatientRepository
	files     port.FileStore
	log       *zap.Logger

	now func() time.Time
}

// NewMRIService constructs an MRIService instance.
func NewMRIService(sequences port.SequenceRepository, patients port.PatientRepository, files port.FileStore, log *zap.Logger) *MRIService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MRIService{
		sequences: sequences,
		patients:  patients,
		files:     files,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *MRIService) WithClock(now func() time.Time) *MRIService {
	s.now = now
	return s
}

// CreateSequence stores the uploaded slices under a per-sequence
// directory and records the sequence. Files with a non-DICOM extension
// are skipped; an upload with none at all is rejected.
func (s *MRIService) CreateSequence(ctx context.Context, patientID int64, name string, uploads []Upload) (*domain.MRISequence, int, error) {
	if strings.TrimSpace(name) == "" {
		return nil, 0, &ValidationError{Field: "sequence_name", Rule: "required", Message: "sequence name is required"}
	}
	if len(uploads) == 0 {
		return nil, 0, ErrNoValidFiles
	}

	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, ErrPatientNotFound
		}
		return nil, 0, fmt.Errorf("load patient: %w", err)
	}

	if _, err := s.sequences.GetByPatientAndName(ctx, patientID, name); err == nil {
		return nil, 0, ErrSequenceExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, 0, fmt.Errorf("check sequence name: %w", err)
	}

	folder := sequenceFolder(patientID, name)

	saved := 0
	for _, upload := range uploads {
		if !allowedExtension(upload.Filename, dicomExtensions) {
			continue
		}
		if _, err := s.files.Save(ctx, folder, path.Base(upload.Filename), upload.Reader); err != nil {
			s.cleanupFolder(ctx, folder)
			return nil, 0, fmt.Errorf("store dicom file: %w", err)
		}
		saved++
	}
	if saved == 0 {
		return nil, 0, ErrNoValidFiles
	}

	sequence := domain.MRISequence{
		PatientID:  patientID,
		Name:       name,
		FolderPath: folder,
		CreatedAt:  s.now().UTC(),
	}

	id, err := s.sequences.Create(ctx, sequence)
	if err != nil {
		s.cleanupFolder(ctx, folder)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, 0, ErrSequenceExists
		}
		return nil, 0, fmt.Errorf("create sequence: %w", err)
	}

	sequence.ID = id
	return &sequence, saved, nil
}

// ListByPatient returns every sequence recorded for the patient.
func (s *MRIService) ListByPatient(ctx context.Context, patientID int64) ([]domain.MRISequence, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	sequences, err := s.sequences.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return sequences, nil
}

// DeleteSequence removes the sequence row and its directory.
func (s *MRIService) DeleteSequence(ctx context.Context, id int64) error {
	sequence, err := s.sequences.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSequenceNotFound
		}
		return fmt.Errorf("load sequence: %w", err)
	}

	if err := s.files.RemoveDir(ctx, sequence.FolderPath); err != nil {
		s.log.Warn("failed to remove sequence directory",
			zap.Int64("sequence_id", id),
			zap.String("path", sequence.FolderPath),
			zap.Error(err))
	}

	if err := s.sequences.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSequenceNotFound
		}
		return fmt.Errorf("delete sequence: %w", err)
	}

	return nil
}

// ListFiles returns the stored slices of a sequence.
func (s *MRIService) ListFiles(ctx context.Context, id int64) (*domain.MRISequence, []SequenceFile, error) {
	sequence, err := s.sequences.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSequenceNotFound
		}
		return nil, nil, fmt.Errorf("load sequence: %w", err)
	}

	names, err := s.files.List(ctx, sequence.FolderPath)
	if err != nil {
		return nil, nil, fmt.Errorf("list sequence files: %w", err)
	}

	files := make([]SequenceFile, 0, len(names))
	for _, name := range names {
		if !allowedExtension(name, dicomExtensions) {
			continue
		}
		files = append(files, SequenceFile{
			Name: name,
			Path: path.Join(sequence.FolderPath, name),
		})
	}

	return sequence, files, nil
}

func (s *MRIService) cleanupFolder(ctx context.Context, folder string) {
	if err := s.files.RemoveDir(ctx, folder); err != nil {
		s.log.Warn("failed to remove partial sequence upload",
			zap.String("path", folder),
			zap.Error(err))
	}
}

func sequenceFolder(patientID int64, name string) string {
	return path.Join("sequences", fmt.Sprintf("patient_%d", patientID), name)
}
