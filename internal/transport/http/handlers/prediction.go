package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// PredictionHandler exposes prediction record endpoints.
type PredictionHandler struct {
	predictions *usecase.PredictionService
}

// NewPredictionHandler constructs PredictionHandler.
func NewPredictionHandler(predictions *usecase.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

// RegisterRoutes binds the prediction routes.
func (h *PredictionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.GET("/sequence/:sequenceID", h.listBySequence)
	r.POST("/compare", h.compare)
}

// CreatePrediction godoc
// @Summary Record a prediction run
// @Description Validates the sequence and source slice, reserves a result path, and stores the record.
// @Tags Predictions
// @Accept json
// @Produce json
// @Param request body PredictionCreateRequest true "Prediction payload"
// @Success 201 {object} PredictionView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/predictions [post]
func (h *PredictionHandler) create(c *gin.Context) {
	var req PredictionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "sequence_id and image_path are required"))
		return
	}

	record, err := h.predictions.Create(c.Request.Context(), usecase.CreatePredictionInput{
		SequenceID:      req.SequenceID,
		ImagePath:       req.ImagePath,
		ProstateRegion:  req.ProstateRegion,
		NeedlePositions: req.NeedlePositions,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newPredictionView(record))
}

// GetPrediction godoc
// @Summary Get a prediction record
// @Tags Predictions
// @Produce json
// @Param id path int true "Prediction id"
// @Success 200 {object} PredictionView
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/predictions/{id} [get]
func (h *PredictionHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	record, err := h.predictions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPredictionView(record))
}

// ListPredictions godoc
// @Summary List a sequence's prediction records
// @Tags Predictions
// @Produce json
// @Param sequenceID path int true "Sequence id"
// @Success 200 {object} PredictionListResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/predictions/sequence/{sequenceID} [get]
func (h *PredictionHandler) listBySequence(c *gin.Context) {
	sequenceID, ok := pathID(c, "sequenceID")
	if !ok {
		return
	}

	records, err := h.predictions.ListBySequence(c.Request.Context(), sequenceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, predictionList(records))
}

// ComparePredictions godoc
// @Summary Load predictions side by side
// @Description Returns the named prediction records; unknown ids are skipped.
// @Tags Predictions
// @Accept json
// @Produce json
// @Param request body PredictionCompareRequest true "Compare payload"
// @Success 200 {object} PredictionListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/predictions/compare [post]
func (h *PredictionHandler) compare(c *gin.Context) {
	var req PredictionCompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "prediction_ids is required"))
		return
	}

	records, err := h.predictions.Compare(c.Request.Context(), req.PredictionIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, predictionList(records))
}

func (h *PredictionHandler) respondError(c *gin.Context, err error) {
	var violation *usecase.ValidationError
	switch {
	case errors.As(err, &violation):
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:   violation.Message,
			Field:   violation.Field,
			Rule:    violation.Rule,
			TraceID: middleware.GetTraceID(c),
		})
	case errors.Is(err, usecase.ErrSequenceNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sequence not found"))
	case errors.Is(err, usecase.ErrSourceImageNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "source image not found"))
	case errors.Is(err, usecase.ErrPredictionNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "prediction not found"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "prediction operation failed"))
	}
}

func predictionList(records []domain.PredRecord) PredictionListResponse {
	views := make([]PredictionView, 0, len(records))
	for i := range records {
		views = append(views, newPredictionView(&records[i]))
	}
	return PredictionListResponse{Predictions: views}
}
