package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// MRIHandler exposes DICOM sequence endpoints.
type MRIHandler struct {
	mri *usecase.MRIService
}

// NewMRIHandler constructs MRIHandler.
func NewMRIHandler(mri *usecase.MRIService) *MRIHandler {
	return &MRIHandler{mri: mri}
}

// RegisterRoutes binds the MRI sequence routes.
func (h *MRIHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sequences", h.createSequence)
	r.GET("/sequences/patient/:patientID", h.listByPatient)
	r.DELETE("/sequences/:id", h.deleteSequence)
	r.GET("/sequences/:id/files", h.listFiles)
}

// CreateSequence godoc
// @Summary Upload an MRI sequence
// @Description Stores the uploaded DICOM slices under a per-sequence directory and records the sequence.
// @Tags MRI
// @Accept multipart/form-data
// @Produce json
// @Param patient_id formData int true "Patient id"
// @Param sequence_name formData string true "Sequence name, unique per patient"
// @Param files formData file true "DICOM files"
// @Success 201 {object} SequenceCreateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/mri/sequences [post]
func (h *MRIHandler) createSequence(c *gin.Context) {
	patientID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("patient_id")), 10, 64)
	if err != nil || patientID <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid patient_id"))
		return
	}
	name := strings.TrimSpace(c.PostForm("sequence_name"))

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid multipart payload"))
		return
	}

	headers := form.File["files"]
	uploads := make([]usecase.Upload, 0, len(headers))
	closers := make([]func(), 0, len(headers))
	defer func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}()

	for _, header := range headers {
		upload, closeFn, err := openUpload(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to read file upload"))
			return
		}
		closers = append(closers, closeFn)
		uploads = append(uploads, *upload)
	}

	sequence, saved, err := h.mri.CreateSequence(c.Request.Context(), patientID, name, uploads)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SequenceCreateResponse{
		Sequence:  newSequenceView(sequence),
		FileCount: saved,
	})
}

// ListSequences godoc
// @Summary List a patient's MRI sequences
// @Tags MRI
// @Produce json
// @Param patientID path int true "Patient id"
// @Success 200 {object} map[string][]SequenceView
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/mri/sequences/patient/{patientID} [get]
func (h *MRIHandler) listByPatient(c *gin.Context) {
	patientID, ok := pathID(c, "patientID")
	if !ok {
		return
	}

	sequences, err := h.mri.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]SequenceView, 0, len(sequences))
	for i := range sequences {
		views = append(views, newSequenceView(&sequences[i]))
	}

	c.JSON(http.StatusOK, gin.H{"sequences": views})
}

// DeleteSequence godoc
// @Summary Delete an MRI sequence
// @Description Removes the sequence record and its slice directory.
// @Tags MRI
// @Produce json
// @Param id path int true "Sequence id"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/mri/sequences/{id} [delete]
func (h *MRIHandler) deleteSequence(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.mri.DeleteSequence(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "sequence deleted"})
}

// ListSequenceFiles godoc
// @Summary List the stored slices of a sequence
// @Tags MRI
// @Produce json
// @Param id path int true "Sequence id"
// @Success 200 {object} SequenceFilesResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/mri/sequences/{id}/files [get]
func (h *MRIHandler) listFiles(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sequence, files, err := h.mri.ListFiles(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]SequenceFileView, 0, len(files))
	for _, file := range files {
		views = append(views, SequenceFileView{Name: file.Name, Path: file.Path})
	}

	c.JSON(http.StatusOK, SequenceFilesResponse{
		SequenceID:   sequence.ID,
		SequenceName: sequence.Name,
		Files:        views,
	})
}

func (h *MRIHandler) respondError(c *gin.Context, err error) {
	var violation *usecase.ValidationError
	switch {
	case errors.As(err, &violation):
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:   violation.Message,
			Field:   violation.Field,
			Rule:    violation.Rule,
			TraceID: middleware.GetTraceID(c),
		})
	case errors.Is(err, usecase.ErrNoValidFiles):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "no valid dicom files in upload"))
	case errors.Is(err, usecase.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "patient not found"))
	case errors.Is(err, usecase.ErrSequenceNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sequence not found"))
	case errors.Is(err, usecase.ErrSequenceExists):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "sequence name already exists for patient"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "sequence operation failed"))
	}
}
