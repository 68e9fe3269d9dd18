package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusfix/backend/internal/models"
)

type TechnicianRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name" validate:"required"`
	Specialization string `json:"specialization" validate:"required,oneof=water electricity garbage it hostel"`
	Active         *bool  `json:"active"`
	Available      *bool  `json:"available"`
	MaxConcurrent  int    `json:"max_concurrent" validate:"min=0,max=50"`
}

type ImportSummary struct {
	Parsed   int      `json:"parsed"`
	Upserted int      `json:"upserted"`
	Errors   []string `json:"errors"`
}

const defaultMaxConcurrent = 3

// @Summary List technicians
// @Tags technicians
// @Produce json
// @Param specialization query string false "category"
// @Param eligible query bool false "only technicians that can take work"
// @Success 200 {object} map[string]any
// @Router /api/technicians [get]
func (h *Handler) TechniciansList(c *gin.Context) {
	items, err := h.Store.ListTechnicians(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "Failed to list technicians", err)
		return
	}
	spec := models.Category(strings.ToLower(c.Query("specialization")))
	onlyEligible := c.Query("eligible") == "true"
	out := make([]models.Technician, 0, len(items))
	for _, t := range items {
		if spec != "" && t.Specialization != spec {
			continue
		}
		if onlyEligible && !t.Eligible() {
			continue
		}
		out = append(out, t)
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}

// @Summary Assignments of one technician
// @Tags technicians
// @Produce json
// @Param id path string true "technician id"
// @Param active query bool false "only active"
// @Success 200 {object} map[string]any
// @Router /api/technicians/{id}/assignments [get]
func (h *Handler) TechnicianAssignments(c *gin.Context) {
	ctx := c.Request.Context()
	tech, err := h.Store.GetTechnician(ctx, c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Technician not found", err)
		return
	}
	items, err := h.Store.ListAssignments(ctx, models.AssignmentFilter{
		TechnicianID: tech.ID,
		ActiveOnly:   c.Query("active") == "true",
	})
	if err != nil {
		h.writeServiceError(c, "Failed to list assignments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"technician": tech, "items": items, "count": len(items)})
}

// @Summary Create or update a technician
// @Tags admin
// @Accept json
// @Produce json
// @Param body body TechnicianRequest true "technician"
// @Success 200 {object} models.Technician
// @Router /api/technicians [post]
func (h *Handler) TechnicianUpsert(c *gin.Context) {
	var req TechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	t := models.Technician{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		Specialization: models.Category(req.Specialization),
		Active:         req.Active == nil || *req.Active,
		Available:      req.Available == nil || *req.Available,
		MaxConcurrent:  req.MaxConcurrent,
	}
	if t.MaxConcurrent == 0 {
		t.MaxConcurrent = defaultMaxConcurrent
	}
	saved, err := h.Store.UpsertTechnician(c.Request.Context(), t)
	if err != nil {
		h.writeServiceError(c, "Failed to save technician", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// @Summary Import the technician roster from CSV
// @Tags admin
// @Accept multipart/form-data
// @Produce json
// @Param technicians formData file true "technicians.csv"
// @Success 200 {object} ImportSummary
// @Router /api/technicians/import [post]
func (h *Handler) TechniciansImport(c *gin.Context) {
	file, err := c.FormFile("technicians")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "technicians file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}
	technicians, errs := parseTechniciansCSV(file)
	summary := ImportSummary{Parsed: len(technicians), Errors: errs}
	for _, t := range technicians {
		if _, err := h.Store.UpsertTechnician(c.Request.Context(), t); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", t.ID, err))
			continue
		}
		summary.Upserted++
	}
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	h.Logger.Info().Int("parsed", summary.Parsed).Int("upserted", summary.Upserted).Int("errors", len(summary.Errors)).Msg("technician import")
	c.JSON(http.StatusOK, summary)
}

func parseTechniciansCSV(file *multipart.FileHeader) ([]models.Technician, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()
	return readTechnicians(f)
}

func readTechnicians(r io.Reader) ([]models.Technician, []string) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	var errors []string
	var out []models.Technician

	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}

		id := strings.TrimSpace(getFieldAny(rec, index, "id", "technician_id"))
		name := strings.TrimSpace(getFieldAny(rec, index, "name", "full_name"))
		spec := models.Category(strings.ToLower(strings.TrimSpace(getFieldAny(rec, index, "specialization", "category", "skill"))))
		maxRaw := strings.TrimSpace(getFieldAny(rec, index, "max_concurrent", "capacity"))

		if name == "" {
			errors = append(errors, fmt.Sprintf("line %d: name required", line))
			continue
		}
		if !spec.Valid() {
			errors = append(errors, fmt.Sprintf("line %d: unknown specialization %q", line, spec))
			continue
		}
		maxConcurrent := defaultMaxConcurrent
		if maxRaw != "" {
			v, err := strconv.Atoi(maxRaw)
			if err != nil || v < 0 {
				errors = append(errors, fmt.Sprintf("line %d: bad max_concurrent %q", line, maxRaw))
				continue
			}
			maxConcurrent = v
		}
		if id == "" {
			id = fmt.Sprintf("TECH-%03d", len(out)+1)
		}
		out = append(out, models.Technician{
			ID:             id,
			Name:           name,
			Specialization: spec,
			Active:         parseBool(getFieldAny(rec, index, "active"), true),
			Available:      parseBool(getFieldAny(rec, index, "available"), true),
			MaxConcurrent:  maxConcurrent,
		})
	}
	return out, errors
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if i, ok := idx[name]; ok && i < len(rec) {
			return rec[i]
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

func parseBool(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func validateExt(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".csv"
}
