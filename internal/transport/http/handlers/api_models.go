package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// ValidationErrorResponse reports a rejected request field.
type ValidationErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	TraceID string `json:"trace_id,omitempty"`
}

// LockedResponse is returned while an account lock is active.
type LockedResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	TraceID           string `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary describes a minimal view of a staff account.
type AccountSummary struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	IdentityKey string    `json:"identity_key"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Department  string    `json:"department,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newAccountSummary(account *domain.Account) AccountSummary {
	return AccountSummary{
		ID:          account.ID,
		Kind:        string(account.Kind),
		IdentityKey: account.IdentityKey,
		Name:        account.Name,
		Email:       account.Email,
		Department:  account.Department,
		CreatedAt:   account.CreatedAt,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Kind        string `json:"kind"`
	IdentityKey string `json:"identity_key" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	Account      AccountSummary `json:"account"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RegisterRequest defines the staff registration payload. Kind defaults
// to doctor when omitted.
type RegisterRequest struct {
	Kind        string `json:"kind"`
	IdentityKey string `json:"identity_key" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Department  string `json:"department"`
	Password    string `json:"password" binding:"required"`
}

// RegisterResponse references the created verification session.
type RegisterResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Delivered bool      `json:"delivered"`
}

// ResendCodeRequest asks for the verification code to be emailed again.
type ResendCodeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// VerifyRequest confirms a registration with the emailed code.
type VerifyRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// CodeMismatchResponse reports a wrong code and the guesses left.
type CodeMismatchResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	TraceID           string `json:"trace_id,omitempty"`
}

// PatientView is the API representation of a patient chart.
type PatientView struct {
	ID        int64     `json:"id"`
	IDCard    string    `json:"id_card"`
	Name      string    `json:"name"`
	Gender    string    `json:"gender"`
	PhotoPath *string   `json:"photo_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newPatientView(patient *domain.Patient) PatientView {
	return PatientView{
		ID:        patient.ID,
		IDCard:    patient.IDCard,
		Name:      patient.Name,
		Gender:    string(patient.Gender),
		PhotoPath: patient.PhotoPath,
		CreatedAt: patient.CreatedAt,
	}
}

// PatientListResponse is one page of the patient listing.
type PatientListResponse struct {
	Patients    []PatientView `json:"patients"`
	Total       int           `json:"total"`
	Pages       int           `json:"pages"`
	CurrentPage int           `json:"current_page"`
}

// SequenceView is the API representation of an MRI sequence.
type SequenceView struct {
	ID         int64     `json:"id"`
	PatientID  int64     `json:"patient_id"`
	Name       string    `json:"sequence_name"`
	FolderPath string    `json:"folder_path"`
	CreatedAt  time.Time `json:"created_at"`
}

func newSequenceView(seq *domain.MRISequence) SequenceView {
	return SequenceView{
		ID:         seq.ID,
		PatientID:  seq.PatientID,
		Name:       seq.Name,
		FolderPath: seq.FolderPath,
		CreatedAt:  seq.CreatedAt,
	}
}

// SequenceCreateResponse reports the stored sequence and file count.
type SequenceCreateResponse struct {
	Sequence  SequenceView `json:"sequence"`
	FileCount int          `json:"file_count"`
}

// SequenceFileView is one stored slice of a sequence.
type SequenceFileView struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SequenceFilesResponse lists the slices of a sequence.
type SequenceFilesResponse struct {
	SequenceID   int64              `json:"sequence_id"`
	SequenceName string             `json:"sequence_name"`
	Files        []SequenceFileView `json:"files"`
}

// PredictionView is the API representation of a prediction record.
type PredictionView struct {
	ID         int64     `json:"id"`
	SequenceID int64     `json:"sequence_id"`
	ResultPath string    `json:"result_path"`
	PredTime   time.Time `json:"pred_time"`
}

func newPredictionView(rec *domain.PredRecord) PredictionView {
	return PredictionView{
		ID:         rec.ID,
		SequenceID: rec.SequenceID,
		ResultPath: rec.ResultPath,
		PredTime:   rec.PredTime,
	}
}

// PredictionCreateRequest identifies the slice to run a prediction on.
type PredictionCreateRequest struct {
	SequenceID      int64            `json:"sequence_id" binding:"required"`
	ImagePath       string           `json:"image_path" binding:"required"`
	ProstateRegion  map[string]any   `json:"prostate_region"`
	NeedlePositions []map[string]any `json:"needle_positions"`
}

// PredictionCompareRequest names the predictions to load side by side.
type PredictionCompareRequest struct {
	PredictionIDs []int64 `json:"prediction_ids" binding:"required"`
}

// PredictionListResponse wraps a list of prediction records.
type PredictionListResponse struct {
	Predictions []PredictionView `json:"predictions"`
}

// HealthResponse describes the health check payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse describes the readiness payload including dependency checks.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
