package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/service"
)

type IncidentView struct {
	models.Incident
	PriorityLabel string                 `json:"priority_label"`
	Computed      *service.Priority      `json:"computed_priority,omitempty"`
	SLA           *service.SLAEvaluation `json:"sla,omitempty"`
	Assignment    *models.Assignment     `json:"assignment,omitempty"`
}

type StatusRequest struct {
	Status   string `json:"status" validate:"required,oneof=new in-progress resolved closed"`
	Evidence string `json:"evidence"`
}

// @Summary List incidents
// @Tags incidents
// @Produce json
// @Param user_id query string false "reporter"
// @Param status query string false "status"
// @Param assigned_to query string false "technician id"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/incidents [get]
func (h *Handler) IncidentsList(c *gin.Context) {
	filter := models.IncidentFilter{
		UserID:     c.Query("user_id"),
		AssignedTo: c.Query("assigned_to"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown status", err.Error())
			return
		}
		filter.Status = status
	}
	items, err := h.Store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, "Failed to list incidents", err)
		return
	}
	now := h.now()
	views := make([]IncidentView, 0, len(items))
	for _, incident := range items {
		view := IncidentView{Incident: incident, PriorityLabel: service.PriorityLabel(incident.Priority)}
		if eval, ok := h.SLA.Evaluate(incident, now); ok {
			view.SLA = &eval
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"items": views, "count": len(views)})
}

// @Summary Report an incident
// @Tags incidents
// @Accept json
// @Produce json
// @Param body body service.NewIncident true "incident"
// @Success 201 {object} models.Incident
// @Failure 409 {object} map[string]any
// @Router /api/incidents [post]
func (h *Handler) IncidentCreate(c *gin.Context) {
	var req service.NewIncident
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	incident, err := h.Incidents.CreateIncident(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, "Failed to create incident", err)
		return
	}
	c.JSON(http.StatusCreated, incident)
}

// @Summary Incident details with computed priority and SLA
// @Tags incidents
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} IncidentView
// @Router /api/incidents/{id} [get]
func (h *Handler) IncidentDetails(c *gin.Context) {
	ctx := c.Request.Context()
	incident, err := h.Store.GetIncident(ctx, c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Incident not found", err)
		return
	}
	now := h.now()
	view := IncidentView{Incident: incident, PriorityLabel: service.PriorityLabel(incident.Priority)}
	priority, err := h.Incidents.Classify(ctx, incident, now)
	if err != nil {
		h.Logger.Warn().Err(err).Str("incident_id", incident.ID).Msg("classify incident")
	}
	view.Computed = &priority
	if eval, ok := h.SLA.Evaluate(incident, now); ok {
		view.SLA = &eval
	}
	active, err := h.Store.ActiveAssignment(ctx, incident.ID)
	if err != nil {
		h.writeServiceError(c, "Failed to load assignment", err)
		return
	}
	view.Assignment = active
	c.JSON(http.StatusOK, view)
}

// @Summary Move an incident one step along its lifecycle
// @Tags incidents
// @Accept json
// @Produce json
// @Param id path string true "incident id"
// @Param body body StatusRequest true "target status"
// @Success 200 {object} models.Incident
// @Failure 409 {object} map[string]any
// @Router /api/incidents/{id}/status [patch]
func (h *Handler) IncidentStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	to := models.Status(req.Status)
	if to == models.StatusClosed {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "Closing is an admin action", nil)
		return
	}
	incident, err := h.Incidents.Transition(c.Request.Context(), c.Param("id"), to, req.Evidence)
	if err != nil {
		h.writeServiceError(c, "Status change rejected", err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

// @Summary Close a resolved incident
// @Tags admin
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} models.Incident
// @Router /api/incidents/{id}/close [post]
func (h *Handler) IncidentClose(c *gin.Context) {
	incident, err := h.Incidents.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Close rejected", err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

// @Summary SLA usage of one incident
// @Tags sla
// @Produce json
// @Param id path string true "incident id"
// @Success 200 {object} service.SLAEvaluation
// @Router /api/incidents/{id}/sla [get]
func (h *Handler) IncidentSLA(c *gin.Context) {
	incident, err := h.Store.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Incident not found", err)
		return
	}
	eval, ok := h.SLA.Evaluate(incident, h.now())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"incident_id": incident.ID, "status": incident.Status, "tracked": false})
		return
	}
	c.JSON(http.StatusOK, eval)
}

// @Summary SLA board of every open incident
// @Tags sla
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/sla [get]
func (h *Handler) SLABoard(c *gin.Context) {
	incidents, err := h.Store.OpenIncidents(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "Failed to load incidents", err)
		return
	}
	now := h.now()
	counts := map[service.SLAState]int{service.SLAOk: 0, service.SLAWarning: 0, service.SLACritical: 0}
	evals := make([]service.SLAEvaluation, 0, len(incidents))
	for _, incident := range incidents {
		eval, ok := h.SLA.Evaluate(incident, now)
		if !ok {
			continue
		}
		counts[eval.State]++
		evals = append(evals, eval)
	}
	sort.SliceStable(evals, func(i, j int) bool {
		return evals[i].RawPercentage > evals[j].RawPercentage
	})
	c.JSON(http.StatusOK, gin.H{
		"items":       evals,
		"counts":      counts,
		"sla_minutes": h.SLA.Budget.Minutes(),
		"checked_at":  now,
	})
}

// @Summary Notifications for a user or role
// @Tags notifications
// @Produce json
// @Param user_id query string false "recipient"
// @Param role query string false "role"
// @Param unread query bool false "only unread"
// @Success 200 {object} map[string]any
// @Router /api/notifications [get]
func (h *Handler) NotificationsList(c *gin.Context) {
	items, err := h.Store.ListNotifications(c.Request.Context(), models.NotificationFilter{
		UserID:     c.Query("user_id"),
		Role:       c.Query("role"),
		UnreadOnly: c.Query("unread") == "true",
		Limit:      queryInt(c, "limit", 50),
	})
	if err != nil {
		h.writeServiceError(c, "Failed to list notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
