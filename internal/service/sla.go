package service

import (
	"math"
	"time"

	"github.com/campusfix/backend/internal/models"
)

const (
	DefaultSLABudget      = 15 * time.Minute
	DefaultWarningPercent = 80.0
)

type SLAState string

const (
	SLAOk       SLAState = "ok"
	SLAWarning  SLAState = "warning"
	SLACritical SLAState = "critical"
)

type SLAEvaluation struct {
	IncidentID     string    `json:"incident_id"`
	Title          string    `json:"title"`
	ElapsedMinutes int       `json:"time_since_creation"`
	BudgetMinutes  int       `json:"sla_minutes"`
	PercentageUsed float64   `json:"percentage_used"`
	RawPercentage  float64   `json:"raw_percentage"`
	State          SLAState  `json:"status"`
	Deadline       time.Time `json:"sla_deadline"`
}

// SLAEngine holds the single global budget applied to every open incident.
type SLAEngine struct {
	Budget         time.Duration
	WarningPercent float64
}

func NewSLAEngine(budget time.Duration) SLAEngine {
	if budget <= 0 {
		budget = DefaultSLABudget
	}
	return SLAEngine{Budget: budget, WarningPercent: DefaultWarningPercent}
}

// Evaluate reports SLA usage for an open incident. ok is false for incidents
// that are resolved or closed.
func (e SLAEngine) Evaluate(incident models.Incident, now time.Time) (SLAEvaluation, bool) {
	if !incident.Status.Open() {
		return SLAEvaluation{}, false
	}
	budget := e.Budget
	if budget <= 0 {
		budget = DefaultSLABudget
	}
	warning := e.WarningPercent
	if warning <= 0 {
		warning = DefaultWarningPercent
	}

	start := incident.SLAStart()
	elapsed := int(math.Floor(now.Sub(start).Minutes()))
	if elapsed < 0 {
		elapsed = 0
	}
	budgetMinutes := budget.Minutes()
	raw := float64(elapsed) / budgetMinutes * 100

	state := SLAOk
	switch {
	case raw >= 100:
		state = SLACritical
	case raw >= warning:
		state = SLAWarning
	}

	return SLAEvaluation{
		IncidentID:     incident.ID,
		Title:          incident.Title,
		ElapsedMinutes: elapsed,
		BudgetMinutes:  int(math.Round(budgetMinutes)),
		PercentageUsed: math.Min(math.Max(raw, 0), 100),
		RawPercentage:  raw,
		State:          state,
		Deadline:       start.Add(budget),
	}, true
}
