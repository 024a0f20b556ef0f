package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// RegistrationHandler exposes the verification-gated registration flow.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// RegisterRoutes binds the registration routes, applying optional
// middleware ahead of the register handler.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup, registerMiddlewares ...gin.HandlerFunc) {
	if len(registerMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, registerMiddlewares...)
		chain = append(chain, h.register)
		r.POST("/register", chain...)
	} else {
		r.POST("/register", h.register)
	}

	r.POST("/resend-code", h.resendCode)
	r.POST("/verify", h.verify)
}

// Register godoc
// @Summary Apply for a staff account
// @Description Validates the application, stores a pending verification session, and emails a confirmation code.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ValidationErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	kind := domain.AccountKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.AccountKindDoctor
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Kind:        kind,
		IdentityKey: strings.TrimSpace(req.IdentityKey),
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Department:  strings.TrimSpace(req.Department),
		Password:    req.Password,
	})
	if err != nil {
		var violation *usecase.ValidationError
		switch {
		case errors.As(err, &violation):
			c.JSON(http.StatusBadRequest, ValidationErrorResponse{
				Error:   violation.Message,
				Field:   violation.Field,
				Rule:    violation.Rule,
				TraceID: middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrIdentityTaken):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "identity already registered"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start registration"))
		}
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		SessionID: result.SessionID,
		ExpiresAt: result.ExpiresAt,
		Delivered: result.Delivered,
	})
}

// ResendCode godoc
// @Summary Resend the verification code
// @Description Regenerates the code for a pending session and emails it again, throttled per session.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body ResendCodeRequest true "Resend payload"
// @Success 200 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} LockedResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/resend-code [post]
func (h *RegistrationHandler) resendCode(c *gin.Context) {
	var req ResendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	result, err := h.registration.Resend(c.Request.Context(), req.SessionID)
	if err != nil {
		var tooSoon *usecase.TooSoonError
		switch {
		case errors.As(err, &tooSoon):
			c.Header("Retry-After", retryAfterSeconds(tooSoon.RetryAfter))
			c.JSON(http.StatusTooManyRequests, LockedResponse{
				Error:             "code already sent",
				RetryAfterSeconds: int(math.Ceil(tooSoon.RetryAfter.Seconds())),
				TraceID:           middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "verification session not found"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resend code"))
		}
		return
	}

	c.JSON(http.StatusOK, RegisterResponse{
		SessionID: result.SessionID,
		ExpiresAt: result.ExpiresAt,
		Delivered: result.Delivered,
	})
}

// Verify godoc
// @Summary Confirm a registration
// @Description Checks the emailed code, consumes the session, materializes the account, and issues tokens.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verification payload"
// @Success 201 {object} LoginResponse
// @Failure 400 {object} CodeMismatchResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/verify [post]
func (h *RegistrationHandler) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id and code are required"))
		return
	}

	result, err := h.registration.Confirm(c.Request.Context(), req.SessionID, strings.TrimSpace(req.Code))
	if err != nil {
		var mismatch *usecase.CodeMismatchError
		switch {
		case errors.As(err, &mismatch):
			c.JSON(http.StatusBadRequest, CodeMismatchResponse{
				Error:             "verification code mismatch",
				AttemptsRemaining: mismatch.AttemptsRemaining,
				TraceID:           middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrSessionExpired):
			c.JSON(http.StatusGone, NewErrorResponse(c, "verification session expired"))
		case errors.Is(err, usecase.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "verification session not found"))
		case errors.Is(err, usecase.ErrIdentityTaken):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "identity already registered"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to confirm registration"))
		}
		return
	}

	c.JSON(http.StatusCreated, LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		Account:      newAccountSummary(result.Account),
	})
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds)
}
