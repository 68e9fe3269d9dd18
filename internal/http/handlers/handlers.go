package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/campusfix/backend/internal/prediction"
	"github.com/campusfix/backend/internal/service"
	"github.com/campusfix/backend/internal/store"
)

// ScorerHealth reports on the external prediction service.
type ScorerHealth interface {
	Health(ctx context.Context) prediction.HealthStatus
}

type Handler struct {
	Store       store.Store
	Incidents   *service.IncidentService
	Engine      *service.AssignmentEngine
	Escalator   *service.Escalator
	SLA         service.SLAEngine
	Predictions service.PredictionSource
	Scorer      ScorerHealth
	Validator   *validator.Validate
	Logger      zerolog.Logger
	AdminKey    string

	CriticalDays    float64
	PredictionLimit int
	Now             func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps a service error onto the error envelope.
func (h *Handler) writeServiceError(c *gin.Context, message string, err error) {
	code := service.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrEvidenceRequired):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotEligible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrAlreadyAssigned),
		errors.Is(err, service.ErrNoEligibleTechnician),
		errors.Is(err, service.ErrCapacity),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, service.ErrDuplicateIncident),
		errors.Is(err, service.ErrTickInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("code", code).Msg(message)
	}
	writeError(c, status, code, message, err.Error())
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
