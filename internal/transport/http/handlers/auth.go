package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/infra/telemetry"
	"github.com/medscan/hospital-records/internal/transport/http/middleware"
	"github.com/medscan/hospital-records/internal/usecase"
)

// AuthHandler exposes login and token refresh endpoints.
type AuthHandler struct {
	auth    *usecase.AuthService
	metrics *telemetry.Metrics
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, metrics *telemetry.Metrics) *AuthHandler {
	return &AuthHandler{auth: auth, metrics: metrics}
}

// RegisterRoutes binds authentication routes, applying optional
// per-endpoint middleware chains ahead of the handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	r.POST("/login", append(append([]gin.HandlerFunc{}, loginMiddlewares...), h.login)...)
	r.POST("/refresh", append(append([]gin.HandlerFunc{}, refreshMiddlewares...), h.refresh)...)
}

// Login godoc
// @Summary Authenticate a staff member
// @Description Validates the identity key and password, returning access and refresh tokens on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} LockedResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identity_key and password are required"))
		return
	}

	kind := domain.AccountKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.AccountKindDoctor
	}
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "kind must be doctor or admin"))
		return
	}

	account, tokens, err := h.auth.Login(c.Request.Context(), kind, strings.TrimSpace(req.IdentityKey), req.Password)
	if err != nil {
		var locked *usecase.AccountLockedError
		switch {
		case errors.As(err, &locked):
			h.countLogin("locked")
			c.JSON(http.StatusForbidden, LockedResponse{
				Error:             "account locked",
				RetryAfterSeconds: int(math.Ceil(locked.RetryAfter.Seconds())),
				TraceID:           middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrInvalidCredentials):
			h.countLogin("invalid")
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
		default:
			h.countLogin("error")
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to authenticate"))
		}
		return
	}

	h.countLogin("success")
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		Account:      newAccountSummary(account),
	})
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Issues a new token pair using a valid refresh token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} LockedResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	account, tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		var locked *usecase.AccountLockedError
		switch {
		case errors.As(err, &locked):
			c.JSON(http.StatusForbidden, LockedResponse{
				Error:             "account locked",
				RetryAfterSeconds: int(math.Ceil(locked.RetryAfter.Seconds())),
				TraceID:           middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrExpiredRefreshToken):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token expired"))
		case errors.Is(err, usecase.ErrInvalidRefreshToken):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid refresh token"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to refresh token"))
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		Account:      newAccountSummary(account),
	})
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.LoginOutcomes.WithLabelValues(outcome).Inc()
}
