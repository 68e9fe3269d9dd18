package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusfix/backend/internal/models"
)

type AssignmentUpdateRequest struct {
	Status          string `json:"status" validate:"required,oneof=in-progress completed"`
	CompletionImage string `json:"completion_image"`
}

type ReassignRequest struct {
	TechnicianID string `json:"technician_id" validate:"required"`
	Reason       string `json:"reason"`
}

// @Summary Assign an incident to the best available technician
// @Tags admin
// @Produce json
// @Param id path string true "incident id"
// @Success 201 {object} models.Assignment
// @Failure 409 {object} map[string]any
// @Router /api/incidents/{id}/assign [post]
func (h *Handler) IncidentAssign(c *gin.Context) {
	assignment, err := h.Engine.AssignIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Assignment failed", err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// @Summary Start or complete an assignment
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "assignment id"
// @Param body body AssignmentUpdateRequest true "target status"
// @Success 200 {object} models.Assignment
// @Router /api/assignments/{id} [patch]
func (h *Handler) AssignmentUpdate(c *gin.Context) {
	var req AssignmentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		assignment models.Assignment
		err        error
	)
	switch models.AssignmentStatus(req.Status) {
	case models.AssignmentInProgress:
		assignment, err = h.Engine.StartAssignment(ctx, id)
	case models.AssignmentCompleted:
		assignment, err = h.Engine.CompleteAssignment(ctx, id, req.CompletionImage)
	}
	if err != nil {
		h.writeServiceError(c, "Assignment update rejected", err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// @Summary Move an active assignment to another technician
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "assignment id"
// @Param body body ReassignRequest true "new technician"
// @Success 200 {object} models.Assignment
// @Failure 422 {object} map[string]any
// @Router /api/assignments/{id}/reassign [post]
func (h *Handler) AssignmentReassign(c *gin.Context) {
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	assignment, err := h.Engine.Reassign(c.Request.Context(), c.Param("id"), req.TechnicianID)
	if err != nil {
		h.writeServiceError(c, "Reassign rejected", err)
		return
	}
	if req.Reason != "" {
		h.Logger.Info().Str("assignment_id", assignment.ID).Str("reason", req.Reason).Msg("manual reassign")
	}
	c.JSON(http.StatusOK, assignment)
}
