package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// PatientHandler exposes patient chart endpoints.
type PatientHandler struct {
	patients *usecase.PatientService
}

// NewPatientHandler constructs PatientHandler.
func NewPatientHandler(patients *usecase.PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

// RegisterRoutes binds the patient routes.
func (h *PatientHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("", h.list)
	r.GET("/:id", h.get)
	r.PUT("/:id", h.update)
	r.DELETE("/:id", h.delete)
}

// CreatePatient godoc
// @Summary Create a patient chart
// @Description Stores a new patient with an optional photo upload.
// @Tags Patients
// @Accept multipart/form-data
// @Produce json
// @Param id_card formData string true "National id number"
// @Param name formData string true "Patient name"
// @Param gender formData string true "Gender (M or F)"
// @Param photo formData file false "Portrait photo"
// @Success 201 {object} PatientView
// @Failure 400 {object} ValidationErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/patients [post]
func (h *PatientHandler) create(c *gin.Context) {
	input := usecase.CreatePatientInput{
		IDCard: strings.TrimSpace(c.PostForm("id_card")),
		Name:   strings.TrimSpace(c.PostForm("name")),
		Gender: domain.Gender(strings.TrimSpace(c.PostForm("gender"))),
	}

	if header, err := c.FormFile("photo"); err == nil && header != nil {
		upload, closeFn, err := openUpload(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to read photo upload"))
			return
		}
		defer closeFn()
		input.Photo = upload
	}

	patient, err := h.patients.Create(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newPatientView(patient))
}

// ListPatients godoc
// @Summary List patient charts
// @Description Returns one page of patients, newest first, optionally filtered by a name or id card substring.
// @Tags Patients
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size" default(10)
// @Param search query string false "Name or id card substring"
// @Success 200 {object} PatientListResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/patients [get]
func (h *PatientHandler) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	result, err := h.patients.List(c.Request.Context(), c.Query("search"), page, perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list patients"))
		return
	}

	views := make([]PatientView, 0, len(result.Items))
	for i := range result.Items {
		views = append(views, newPatientView(&result.Items[i]))
	}

	c.JSON(http.StatusOK, PatientListResponse{
		Patients:    views,
		Total:       result.Total,
		Pages:       result.Pages(),
		CurrentPage: result.Page,
	})
}

// GetPatient godoc
// @Summary Get a patient chart
// @Tags Patients
// @Produce json
// @Param id path int true "Patient id"
// @Success 200 {object} PatientView
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/patients/{id} [get]
func (h *PatientHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	patient, err := h.patients.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPatientView(patient))
}

// UpdatePatient godoc
// @Summary Update a patient chart
// @Description Applies a partial update; a replacement photo removes the old one.
// @Tags Patients
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Patient id"
// @Param name formData string false "Patient name"
// @Param gender formData string false "Gender (M or F)"
// @Param photo formData file false "Replacement photo"
// @Success 200 {object} PatientView
// @Failure 400 {object} ValidationErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/patients/{id} [put]
func (h *PatientHandler) update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input usecase.UpdatePatientInput
	if name := strings.TrimSpace(c.PostForm("name")); name != "" {
		input.Name = &name
	}
	if gender := strings.TrimSpace(c.PostForm("gender")); gender != "" {
		g := domain.Gender(gender)
		input.Gender = &g
	}
	if header, err := c.FormFile("photo"); err == nil && header != nil {
		upload, closeFn, err := openUpload(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to read photo upload"))
			return
		}
		defer closeFn()
		input.Photo = upload
	}

	patient, err := h.patients.Update(c.Request.Context(), id, input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPatientView(patient))
}

// DeletePatient godoc
// @Summary Delete a patient chart
// @Description Removes the chart along with its photo and sequence directories.
// @Tags Patients
// @Produce json
// @Param id path int true "Patient id"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/patients/{id} [delete]
func (h *PatientHandler) delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.patients.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "patient deleted"})
}

func (h *PatientHandler) respondError(c *gin.Context, err error) {
	var violation *usecase.ValidationError
	switch {
	case errors.As(err, &violation):
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:   violation.Message,
			Field:   violation.Field,
			Rule:    violation.Rule,
			TraceID: middleware.GetTraceID(c),
		})
	case errors.Is(err, usecase.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "patient not found"))
	case errors.Is(err, usecase.ErrPatientExists):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "id card already registered"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "patient operation failed"))
	}
}

// pathID parses a numeric path parameter, responding 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid "+name))
		return 0, false
	}
	return id, true
}

// openUpload adapts a multipart header into a usecase upload.
func openUpload(header *multipart.FileHeader) (*usecase.Upload, func(), error) {
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	upload := &usecase.Upload{
		Filename: header.Filename,
		Reader:   file,
	}
	return upload, func() { _ = file.Close() }, nil
}
