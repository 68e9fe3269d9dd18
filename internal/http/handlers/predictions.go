package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/service"
)

type PredictionView struct {
	models.Prediction
	Critical bool `json:"critical"`
	Priority int  `json:"priority"`
}

func (h *Handler) predictionLimit(c *gin.Context) int {
	def := h.PredictionLimit
	if def <= 0 {
		def = service.DefaultPredictionLimit
	}
	return queryInt(c, "limit", def)
}

func (h *Handler) criticalDays() float64 {
	if h.CriticalDays > 0 {
		return h.CriticalDays
	}
	return service.DefaultCriticalDays
}

// @Summary Failure predictions
// @Tags predictions
// @Produce json
// @Param limit query int false "limit"
// @Success 200 {object} map[string]any
// @Router /api/predictions [get]
func (h *Handler) PredictionsList(c *gin.Context) {
	if h.Predictions == nil {
		writeError(c, http.StatusServiceUnavailable, "PREDICTIONS_UNAVAILABLE", "No prediction source configured", nil)
		return
	}
	items, err := h.Predictions.Predictions(c.Request.Context(), h.predictionLimit(c))
	if err != nil {
		writeError(c, http.StatusBadGateway, "PREDICTIONS_UNAVAILABLE", "Prediction source failed", err.Error())
		return
	}
	threshold := h.criticalDays()
	views := make([]PredictionView, 0, len(items))
	critical := 0
	for _, p := range items {
		v := PredictionView{Prediction: p, Critical: p.DaysToNextFailure < threshold, Priority: service.AlertPriority(p.DaysToNextFailure)}
		if v.Critical {
			critical++
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"items": views, "count": len(views), "critical": critical})
}

// @Summary Scorer health
// @Tags predictions
// @Produce json
// @Success 200 {object} prediction.HealthStatus
// @Router /api/predictions/health [get]
func (h *Handler) PredictionsHealth(c *gin.Context) {
	if h.Scorer == nil {
		writeError(c, http.StatusServiceUnavailable, "PREDICTIONS_UNAVAILABLE", "No prediction scorer configured", nil)
		return
	}
	status := h.Scorer.Health(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// @Summary Turn critical predictions into assigned incidents
// @Tags admin
// @Produce json
// @Success 200 {object} service.BatchResult
// @Router /api/predictions/process-critical [post]
func (h *Handler) ProcessCritical(c *gin.Context) {
	if h.Predictions == nil {
		writeError(c, http.StatusServiceUnavailable, "PREDICTIONS_UNAVAILABLE", "No prediction source configured", nil)
		return
	}
	ctx := c.Request.Context()
	items, err := h.Predictions.Predictions(ctx, h.predictionLimit(c))
	if err != nil {
		writeError(c, http.StatusBadGateway, "PREDICTIONS_UNAVAILABLE", "Prediction source failed", err.Error())
		return
	}
	alerts := service.CriticalAlerts(items, h.criticalDays())
	batch := h.Engine.ProcessCriticalAlerts(ctx, alerts)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Critical alerts processed",
		"total":    len(alerts),
		"assigned": batch.Assigned,
		"failed":   batch.Failed,
		"skipped":  batch.Skipped,
		"results":  batch.Results,
	})
}

// @Summary Run one escalation pass now
// @Tags admin
// @Produce json
// @Success 200 {object} service.TickReport
// @Failure 409 {object} map[string]any
// @Router /api/escalation/tick [post]
func (h *Handler) EscalationTick(c *gin.Context) {
	report, err := h.Escalator.RunEscalationTick(c.Request.Context(), h.now())
	if err != nil {
		h.writeServiceError(c, "Escalation tick failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
