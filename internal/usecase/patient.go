package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/infra/logger"
	"github.com/medscan/hospital-records/internal/repository"
)

const (
	patientPhotoDir   = "patients"
	defaultPageSize   = 10
	maxPageSize       = 100
	maxUploadBaseName = 120
)

var (
	// ErrPatientNotFound indicates no patient exists for the id.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrPatientExists indicates the id card number is already registered.
	ErrPatientExists = errors.New("patient id card already exists")

	photoExtensions = map[string]struct{}{".png": {}, ".jpg": {}, ".jpeg": {}}
)

// Upload is one incoming multipart file.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// CreatePatientInput carries a new patient chart. Photo is optional.
type CreatePatientInput struct {
	IDCard string
	Name   string
	Gender domain.Gender
	Photo  *Upload
}

// UpdatePatientInput carries a partial patient update; nil fields are
// left unchanged.
type UpdatePatientInput struct {
	Name   *string
	Gender *domain.Gender
	Photo  *Upload
}

// PatientPage is one page of the patient listing.
type PatientPage struct {
	Items   []domain.Patient
	Total   int
	Page    int
	PerPage int
}

// Pages returns the number of pages at the page size.
func (p *PatientPage) Pages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// PatientService manages patient charts and their photo uploads.
type PatientService struct {
	patients  port.PatientRepository
	sequences port.SequenceRepository
	files     port.FileStore
	log       *zap.Logger

	now func() time.Time
}

// NewPatientService constructs a PatientService instance.
func NewPatientService(patients port.PatientRepository, sequences port.SequenceRepository, files port.FileStore, log *zap.Logger) *PatientService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PatientService{
		patients:  patients,
		sequences: sequences,
		files:     files,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *PatientService) WithClock(now func() time.Time) *PatientService {
	s.now = now
	return s
}

// Create stores a new patient chart, saving the photo first so the
// stored path can be recorded on the row.
func (s *PatientService) Create(ctx context.Context, input CreatePatientInput) (*domain.Patient, error) {
	if strings.TrimSpace(input.IDCard) == "" {
		return nil, &ValidationError{Field: "id_card", Rule: "required", Message: "id card is required"}
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, &ValidationError{Field: "name", Rule: "required", Message: "name is required"}
	}
	if !input.Gender.Valid() {
		return nil, &ValidationError{Field: "gender", Rule: "oneof", Message: "gender must be M or F"}
	}

	patient := domain.Patient{
		IDCard:    input.IDCard,
		Name:      input.Name,
		Gender:    input.Gender,
		CreatedAt: s.now().UTC(),
	}

	if input.Photo != nil {
		photoPath, err := s.savePhoto(ctx, input.IDCard, input.Photo)
		if err != nil {
			return nil, err
		}
		patient.PhotoPath = &photoPath
	}

	id, err := s.patients.Create(ctx, patient)
	if err != nil {
		if patient.PhotoPath != nil {
			if removeErr := s.files.Remove(ctx, *patient.PhotoPath); removeErr != nil {
				s.log.Warn("failed to remove orphaned patient photo",
					zap.String("path", *patient.PhotoPath),
					zap.Error(removeErr))
			}
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPatientExists
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	patient.ID = id
	s.log.Info("patient chart created",
		zap.Int64("patient_id", id),
		zap.String("id_card", logger.MaskIDCard(patient.IDCard)))
	return &patient, nil
}

// Get returns one patient chart.
func (s *PatientService) Get(ctx context.Context, id int64) (*domain.Patient, error) {
	patient, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return patient, nil
}

// List returns one page of patients, newest first, optionally filtered
// by a name or id card substring.
func (s *PatientService) List(ctx context.Context, search string, page, perPage int) (*PatientPage, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	items, total, err := s.patients.List(ctx, strings.TrimSpace(search), (page-1)*perPage, perPage)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	return &PatientPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// Update applies a partial update; a replacement photo removes the old one.
func (s *PatientService) Update(ctx context.Context, id int64, input UpdatePatientInput) (*domain.Patient, error) {
	patient, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, &ValidationError{Field: "name", Rule: "required", Message: "name must not be empty"}
		}
		patient.Name = *input.Name
	}
	if input.Gender != nil {
		if !input.Gender.Valid() {
			return nil, &ValidationError{Field: "gender", Rule: "oneof", Message: "gender must be M or F"}
		}
		patient.Gender = *input.Gender
	}

	if input.Photo != nil {
		photoPath, err := s.savePhoto(ctx, patient.IDCard, input.Photo)
		if err != nil {
			return nil, err
		}
		if patient.PhotoPath != nil && *patient.PhotoPath != photoPath {
			if removeErr := s.files.Remove(ctx, *patient.PhotoPath); removeErr != nil {
				s.log.Warn("failed to remove replaced patient photo",
					zap.String("path", *patient.PhotoPath),
					zap.Error(removeErr))
			}
		}
		patient.PhotoPath = &photoPath
	}

	if err := s.patients.Update(ctx, *patient); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}

	return patient, nil
}

// Delete removes the chart along with its photo and every sequence
// directory belonging to the patient. File cleanup is best effort; the
// row deletions are what matter.
func (s *PatientService) Delete(ctx context.Context, id int64) error {
	patient, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("load patient: %w", err)
	}

	sequences, err := s.sequences.ListByPatient(ctx, id)
	if err != nil {
		return fmt.Errorf("list patient sequences: %w", err)
	}
	for _, seq := range sequences {
		if err := s.files.RemoveDir(ctx, seq.FolderPath); err != nil {
			s.log.Warn("failed to remove sequence directory",
				zap.Int64("sequence_id", seq.ID),
				zap.String("path", seq.FolderPath),
				zap.Error(err))
		}
		if err := s.sequences.Delete(ctx, seq.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("delete sequence %d: %w", seq.ID, err)
		}
	}

	if patient.PhotoPath != nil {
		if err := s.files.Remove(ctx, *patient.PhotoPath); err != nil {
			s.log.Warn("failed to remove patient photo",
				zap.String("path", *patient.PhotoPath),
				zap.Error(err))
		}
	}

	if err := s.patients.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("delete patient: %w", err)
	}

	s.log.Info("patient chart deleted",
		zap.Int64("patient_id", id),
		zap.String("id_card", logger.MaskIDCard(patient.IDCard)),
		zap.Int("sequences_removed", len(sequences)))
	return nil
}

func (s *PatientService) savePhoto(ctx context.Context, idCard string, photo *Upload) (string, error) {
	if !allowedExtension(photo.Filename, photoExtensions) {
		return "", &ValidationError{Field: "photo", Rule: "extension", Message: "photo must be a png or jpeg file"}
	}

	filename := idCard + "_" + path.Base(photo.Filename)
	if len(filename) > maxUploadBaseName {
		filename = filename[:maxUploadBaseName]
	}

	stored, err := s.files.Save(ctx, patientPhotoDir, filename, photo.Reader)
	if err != nil {
		return "", fmt.Errorf("store patient photo: %w", err)
	}
	return stored, nil
}

func allowedExtension(filename string, allowed map[string]struct{}) bool {
	ext := strings.ToLower(path.Ext(filename))
	_, ok := allowed[ext]
	return ok
}
