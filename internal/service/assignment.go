package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusfix/backend/internal/metrics"
	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

const (
	DefaultAssignmentWindow   = 15 * time.Minute
	DefaultAssignmentDuration = 30
	DefaultCriticalDays       = 30.0

	SystemUserID = "system"
)

const (
	ResultAssigned = "ASSIGNED"
	ResultSkipped  = "SKIPPED"
	ResultFailed   = "FAILED"
)

// Notifier delivers notifications. Delivery is best effort: callers log
// failures and carry on.
type Notifier interface {
	Emit(ctx context.Context, n models.Notification) error
}

type EligibilityResult struct {
	Eligible   []models.Technician
	ReasonCode string
	ReasonText string
	Stages     []EligibilityStage
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Technician
}

// FilterEligibleTechnicians narrows the registry down stage by stage so a
// failed assignment can say which rule removed the last candidate.
func FilterEligibleTechnicians(technicians []models.Technician) EligibilityResult {
	result := EligibilityResult{}
	result.Stages = append(result.Stages, EligibilityStage{Name: "registered", Candidates: technicians})
	if len(technicians) == 0 {
		result.ReasonCode = "NO_TECHNICIANS"
		result.ReasonText = "No technicians registered"
		return result
	}

	active := filterTechnicians(technicians, func(t models.Technician) bool { return t.Active })
	result.Stages = append(result.Stages, EligibilityStage{Name: "active", Candidates: active})
	if len(active) == 0 {
		result.ReasonCode = "NO_ACTIVE_TECHNICIANS"
		result.ReasonText = "All technicians are inactive"
		return result
	}

	available := filterTechnicians(active, func(t models.Technician) bool { return t.Available })
	result.Stages = append(result.Stages, EligibilityStage{Name: "available", Candidates: available})
	if len(available) == 0 {
		result.ReasonCode = "NO_AVAILABLE_TECHNICIANS"
		result.ReasonText = "No technician is available"
		return result
	}

	withCapacity := filterTechnicians(available, func(t models.Technician) bool {
		return t.CurrentAssignments < t.MaxConcurrent
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "capacity", Candidates: withCapacity})
	if len(withCapacity) == 0 {
		result.ReasonCode = "ALL_AT_CAPACITY"
		result.ReasonText = "Every available technician is at capacity"
		return result
	}

	result.Eligible = withCapacity
	return result
}

// RankCandidates orders technicians for an incident: matching specialization
// first, then the lightest load, then id.
func RankCandidates(eligible []models.Technician, category models.Category) []models.Technician {
	ranked := make([]models.Technician, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		mi := ranked[i].Specialization == category
		mj := ranked[j].Specialization == category
		if mi != mj {
			return mi
		}
		if ranked[i].CurrentAssignments != ranked[j].CurrentAssignments {
			return ranked[i].CurrentAssignments < ranked[j].CurrentAssignments
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

func filterTechnicians(technicians []models.Technician, keep func(models.Technician) bool) []models.Technician {
	out := make([]models.Technician, 0, len(technicians))
	for _, t := range technicians {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

type AssignmentEngine struct {
	Incidents   store.IncidentStore
	Assignments store.AssignmentStore
	Registry    store.TechnicianRegistry
	Notifier    Notifier
	Logger      zerolog.Logger

	Window          time.Duration
	DurationMinutes int
	CriticalDays    float64
	Location        *time.Location
	Now             func() time.Time
}

func (e *AssignmentEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *AssignmentEngine) window() time.Duration {
	if e.Window > 0 {
		return e.Window
	}
	return DefaultAssignmentWindow
}

func (e *AssignmentEngine) duration() int {
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	return DefaultAssignmentDuration
}

func (e *AssignmentEngine) criticalDays() float64 {
	if e.CriticalDays > 0 {
		return e.CriticalDays
	}
	return DefaultCriticalDays
}

// AssignIncident loads an incident by id and assigns it.
func (e *AssignmentEngine) AssignIncident(ctx context.Context, incidentID string) (models.Assignment, error) {
	incident, err := e.Incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !incident.Status.Open() {
		return models.Assignment{}, fmt.Errorf("incident %s is %s: %w", incident.ID, incident.Status, ErrInvalidTransition)
	}
	return e.Assign(ctx, incident)
}

// Assign gives the incident to the best ranked technician that still has
// room. The incident status is left as it is.
func (e *AssignmentEngine) Assign(ctx context.Context, incident models.Incident) (models.Assignment, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "assignment.assign")
	span.SetAttributes(attribute.String("incident.id", incident.ID))
	defer span.End()

	assignment, err := e.assign(ctx, incident)
	if err != nil {
		span.RecordError(err)
		metrics.IncAssignment(ErrorCode(err))
		return models.Assignment{}, err
	}
	metrics.IncAssignment(ResultAssigned)
	span.SetAttributes(attribute.String("technician.id", assignment.TechnicianID))
	return assignment, nil
}

func (e *AssignmentEngine) assign(ctx context.Context, incident models.Incident) (models.Assignment, error) {
	active, err := e.Assignments.ActiveAssignment(ctx, incident.ID)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("load active assignment: %w", err)
	}
	if active != nil {
		return models.Assignment{}, fmt.Errorf("incident %s held by %s: %w", incident.ID, active.TechnicianID, ErrAlreadyAssigned)
	}

	technicians, err := e.Registry.ListTechnicians(ctx)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("list technicians: %w", err)
	}
	elig := FilterEligibleTechnicians(technicians)
	if len(elig.Eligible) == 0 {
		return models.Assignment{}, fmt.Errorf("%s: %w", elig.ReasonText, ErrNoEligibleTechnician)
	}

	for _, candidate := range RankCandidates(elig.Eligible, incident.Category) {
		tech, err := e.Registry.AdjustLoad(ctx, candidate.ID, 1)
		if errors.Is(err, store.ErrCapacity) || errors.Is(err, store.ErrNotFound) {
			e.Logger.Debug().Str("incident_id", incident.ID).Str("technician_id", candidate.ID).Err(err).Msg("candidate lost, trying next")
			continue
		}
		if err != nil {
			return models.Assignment{}, fmt.Errorf("reserve technician %s: %w", candidate.ID, err)
		}

		created, err := e.Assignments.CreateAssignment(ctx, models.Assignment{
			IncidentID:      incident.ID,
			TechnicianID:    tech.ID,
			ScheduledTime:   e.scheduledTime(incident),
			DurationMinutes: e.duration(),
			Status:          models.AssignmentScheduled,
		})
		if err != nil {
			e.releaseLoad(ctx, tech.ID)
			return models.Assignment{}, err
		}

		e.Logger.Info().
			Str("incident_id", incident.ID).
			Str("technician_id", tech.ID).
			Str("assignment_id", created.ID).
			Bool("specialization_match", tech.Specialization == incident.Category).
			Msg("incident assigned")
		e.emit(ctx, models.Notification{
			UserID:  tech.ID,
			Role:    models.RoleTechnician,
			Type:    models.NotificationTechnicianAssigned,
			Message: fmt.Sprintf("New assignment: %s at %s", incident.Title, incident.Location),
			Metadata: map[string]any{
				"incident_id":    incident.ID,
				"assignment_id":  created.ID,
				"scheduled_time": created.ScheduledTime,
			},
		})
		return created, nil
	}
	return models.Assignment{}, fmt.Errorf("every candidate filled up concurrently: %w", ErrNoEligibleTechnician)
}

func (e *AssignmentEngine) scheduledTime(incident models.Incident) time.Time {
	if !incident.SLAStartedAt.IsZero() {
		return incident.SLAStartedAt.Add(e.window())
	}
	return e.now().Add(e.window())
}

func (e *AssignmentEngine) releaseLoad(ctx context.Context, technicianID string) {
	if _, err := e.Registry.AdjustLoad(ctx, technicianID, -1); err != nil {
		e.Logger.Error().Err(err).Str("technician_id", technicianID).Msg("release technician load failed")
	}
}

type AlertResult struct {
	Location          string          `json:"location"`
	Category          models.Category `json:"category"`
	DaysToNextFailure float64         `json:"days_to_next_failure"`
	Priority          int             `json:"priority"`
	IncidentID        string          `json:"incident_id,omitempty"`
	TechnicianID      string          `json:"technician_id,omitempty"`
	AssignmentID      string          `json:"assignment_id,omitempty"`
	Result            string          `json:"result"`
	ErrorCode         string          `json:"error_code,omitempty"`
	Error             string          `json:"error,omitempty"`
}

type BatchResult struct {
	Assigned int           `json:"assigned"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Results  []AlertResult `json:"results"`
}

// CriticalAlerts keeps the predictions whose next failure falls under
// threshold days.
func CriticalAlerts(predictions []models.Prediction, threshold float64) []models.CriticalAlert {
	var out []models.CriticalAlert
	for _, p := range predictions {
		if p.DaysToNextFailure >= threshold {
			continue
		}
		out = append(out, models.CriticalAlert{
			Location:          p.Location,
			Category:          p.Category,
			DaysToNextFailure: p.DaysToNextFailure,
			Confidence:        p.Confidence,
			Message:           p.Message,
		})
	}
	return out
}

// ProcessCriticalAlerts turns each critical alert into an incident and tries
// to assign it. A failing alert never stops the rest of the batch.
func (e *AssignmentEngine) ProcessCriticalAlerts(ctx context.Context, alerts []models.CriticalAlert) BatchResult {
	ctx, span := otel.Tracer("service").Start(ctx, "assignment.process_critical_alerts")
	defer span.End()

	threshold := e.criticalDays()
	ordered := make([]models.CriticalAlert, 0, len(alerts))
	for _, a := range alerts {
		if a.DaysToNextFailure < threshold {
			ordered = append(ordered, a)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DaysToNextFailure != ordered[j].DaysToNextFailure {
			return ordered[i].DaysToNextFailure < ordered[j].DaysToNextFailure
		}
		if ordered[i].Location != ordered[j].Location {
			return ordered[i].Location < ordered[j].Location
		}
		return ordered[i].Category < ordered[j].Category
	})

	batch := BatchResult{Results: make([]AlertResult, 0, len(ordered))}
	for _, alert := range ordered {
		res := AlertResult{
			Location:          alert.Location,
			Category:          alert.Category,
			DaysToNextFailure: alert.DaysToNextFailure,
			Priority:          AlertPriority(alert.DaysToNextFailure),
		}

		incident, err := e.incidentForAlert(ctx, alert, res.Priority)
		if err != nil {
			batch.Failed++
			res.Result = ResultFailed
			res.ErrorCode = ErrorCode(err)
			res.Error = err.Error()
			batch.Results = append(batch.Results, res)
			e.Logger.Error().Err(err).Str("location", alert.Location).Str("category", string(alert.Category)).Msg("critical alert intake failed")
			continue
		}
		res.IncidentID = incident.ID

		assignment, err := e.Assign(ctx, incident)
		switch {
		case err == nil:
			batch.Assigned++
			res.Result = ResultAssigned
			res.TechnicianID = assignment.TechnicianID
			res.AssignmentID = assignment.ID
		case errors.Is(err, ErrAlreadyAssigned):
			batch.Skipped++
			res.Result = ResultSkipped
			res.ErrorCode = ErrorCode(err)
			if incident.AssignedTo != nil {
				res.TechnicianID = *incident.AssignedTo
			}
		default:
			batch.Failed++
			res.Result = ResultFailed
			res.ErrorCode = ErrorCode(err)
			res.Error = err.Error()
			e.Logger.Warn().Err(err).Str("incident_id", incident.ID).Msg("critical alert not assigned")
		}
		batch.Results = append(batch.Results, res)
	}

	span.SetAttributes(
		attribute.Int("alerts.assigned", batch.Assigned),
		attribute.Int("alerts.failed", batch.Failed),
		attribute.Int("alerts.skipped", batch.Skipped),
	)
	return batch
}

// incidentForAlert reuses today's open incident for the same category and
// location, or files a new one on behalf of the system user.
func (e *AssignmentEngine) incidentForAlert(ctx context.Context, alert models.CriticalAlert, priority int) (models.Incident, error) {
	now := e.now()
	existing, err := e.Incidents.FindOpenSimilar(ctx, alert.Category, alert.Location, StartOfDay(now, e.Location))
	if err != nil {
		return models.Incident{}, fmt.Errorf("find existing incident: %w", err)
	}
	if existing != nil {
		if existing.Priority >= priority {
			return *existing, nil
		}
		open := existing.Status
		updated, err := e.Incidents.UpdateIncident(ctx, existing.ID, models.IncidentPatch{Priority: &priority, ExpectStatus: &open})
		if err != nil {
			return models.Incident{}, fmt.Errorf("raise incident priority: %w", err)
		}
		return updated, nil
	}

	title := strings.TrimSpace(alert.Message)
	if title == "" {
		title = fmt.Sprintf("Predicted %s failure at %s", alert.Category, alert.Location)
	}
	created, err := e.Incidents.CreateIncident(ctx, models.Incident{
		UserID:       SystemUserID,
		Title:        title,
		Category:     alert.Category,
		Description:  fmt.Sprintf("Predicted failure in %.1f days (confidence %.2f)", alert.DaysToNextFailure, alert.Confidence),
		Location:     alert.Location,
		Status:       models.StatusNew,
		Priority:     priority,
		CreatedAt:    now,
		UpdatedAt:    now,
		SLAStartedAt: now,
	})
	if err != nil {
		return models.Incident{}, fmt.Errorf("create incident: %w", err)
	}
	return created, nil
}

// Reassign moves an active assignment to another technician. Both load
// counters and the incident reference change together or not at all.
func (e *AssignmentEngine) Reassign(ctx context.Context, assignmentID, technicianID string) (models.Assignment, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "assignment.reassign")
	span.SetAttributes(attribute.String("assignment.id", assignmentID), attribute.String("technician.id", technicianID))
	defer span.End()

	current, err := e.Assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !current.Active() {
		return models.Assignment{}, fmt.Errorf("assignment %s is %s: %w", current.ID, current.Status, ErrInvalidTransition)
	}
	if current.TechnicianID == technicianID {
		return models.Assignment{}, fmt.Errorf("technician %s already holds assignment %s: %w", technicianID, current.ID, ErrNotEligible)
	}
	tech, err := e.Registry.GetTechnician(ctx, technicianID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !tech.Eligible() {
		return models.Assignment{}, fmt.Errorf("technician %s: %w", tech.ID, ErrNotEligible)
	}

	updated, err := e.Assignments.SwapTechnician(ctx, current.ID, current.TechnicianID, tech.ID)
	if errors.Is(err, store.ErrCapacity) {
		return models.Assignment{}, fmt.Errorf("technician %s filled up: %w", tech.ID, ErrNotEligible)
	}
	if err != nil {
		return models.Assignment{}, err
	}

	e.Logger.Info().
		Str("assignment_id", updated.ID).
		Str("from_technician", current.TechnicianID).
		Str("to_technician", tech.ID).
		Msg("assignment reassigned")
	meta := map[string]any{
		"incident_id":     updated.IncidentID,
		"assignment_id":   updated.ID,
		"from_technician": current.TechnicianID,
		"to_technician":   tech.ID,
	}
	e.emit(ctx, models.Notification{
		UserID:   tech.ID,
		Role:     models.RoleTechnician,
		Type:     models.NotificationReassigned,
		Message:  "An assignment was transferred to you",
		Metadata: meta,
	})
	e.emit(ctx, models.Notification{
		UserID:   current.TechnicianID,
		Role:     models.RoleTechnician,
		Type:     models.NotificationReassigned,
		Message:  "An assignment was transferred to another technician",
		Metadata: meta,
	})
	return updated, nil
}

// StartAssignment puts the technician on site: the assignment and a still
// new incident both move to in-progress.
func (e *AssignmentEngine) StartAssignment(ctx context.Context, assignmentID string) (models.Assignment, error) {
	current, err := e.Assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if !current.Status.CanTransition(models.AssignmentInProgress) {
		return models.Assignment{}, fmt.Errorf("assignment %s is %s: %w", current.ID, current.Status, ErrInvalidTransition)
	}
	started, err := e.Assignments.UpdateAssignmentStatus(ctx, current.ID, models.AssignmentScheduled, models.AssignmentInProgress, nil)
	if err != nil {
		return models.Assignment{}, transitionConflict(err)
	}

	incident, err := e.Incidents.GetIncident(ctx, started.IncidentID)
	if err != nil {
		return started, fmt.Errorf("load incident: %w", err)
	}
	if incident.Status == models.StatusNew {
		from, to := models.StatusNew, models.StatusInProgress
		_, err := e.Incidents.UpdateIncident(ctx, incident.ID, models.IncidentPatch{Status: &to, ExpectStatus: &from})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return started, fmt.Errorf("start incident: %w", err)
		}
	}
	return started, nil
}

// CompleteAssignment closes the technician's work with evidence, frees their
// capacity and resolves the incident.
func (e *AssignmentEngine) CompleteAssignment(ctx context.Context, assignmentID, evidence string) (models.Assignment, error) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return models.Assignment{}, ErrEvidenceRequired
	}
	current, err := e.Assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if current.Status != models.AssignmentInProgress {
		return models.Assignment{}, fmt.Errorf("assignment %s is %s: %w", current.ID, current.Status, ErrInvalidTransition)
	}
	done, err := e.finish(ctx, current, evidence)
	if err != nil {
		return models.Assignment{}, err
	}

	incident, err := e.Incidents.GetIncident(ctx, done.IncidentID)
	if err != nil {
		return done, fmt.Errorf("load incident: %w", err)
	}
	if incident.Status == models.StatusInProgress {
		from, to := models.StatusInProgress, models.StatusResolved
		resolvedAt := e.now()
		updated, err := e.Incidents.UpdateIncident(ctx, incident.ID, models.IncidentPatch{
			Status:       &to,
			ExpectStatus: &from,
			ResolvedAt:   &resolvedAt,
		})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return done, fmt.Errorf("resolve incident: %w", err)
		}
		if err == nil {
			e.emit(ctx, statusNotification(updated, from))
		}
	}
	return done, nil
}

// finish walks an active assignment to completed and releases the
// technician's slot.
func (e *AssignmentEngine) finish(ctx context.Context, a models.Assignment, evidence string) (models.Assignment, error) {
	if a.Status == models.AssignmentScheduled {
		started, err := e.Assignments.UpdateAssignmentStatus(ctx, a.ID, models.AssignmentScheduled, models.AssignmentInProgress, nil)
		if err != nil {
			return models.Assignment{}, transitionConflict(err)
		}
		a = started
	}
	done, err := e.Assignments.UpdateAssignmentStatus(ctx, a.ID, models.AssignmentInProgress, models.AssignmentCompleted, &evidence)
	if err != nil {
		return models.Assignment{}, transitionConflict(err)
	}
	e.releaseLoad(ctx, done.TechnicianID)
	e.Logger.Info().Str("assignment_id", done.ID).Str("technician_id", done.TechnicianID).Msg("assignment completed")
	return done, nil
}

func statusNotification(incident models.Incident, from models.Status) models.Notification {
	return models.Notification{
		UserID:  incident.UserID,
		Type:    models.NotificationStatusChanged,
		Message: fmt.Sprintf("%s is now %s", incident.Title, incident.Status),
		Metadata: map[string]any{
			"incident_id": incident.ID,
			"from":        from,
			"to":          incident.Status,
		},
	}
}

func (e *AssignmentEngine) emit(ctx context.Context, n models.Notification) {
	emitNotification(ctx, e.Notifier, e.Logger, n)
}

func emitNotification(ctx context.Context, notifier Notifier, logger zerolog.Logger, n models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Emit(ctx, n); err != nil {
		metrics.IncNotification(n.Type, "error")
		logger.Warn().Err(err).Str("type", n.Type).Str("user_id", n.UserID).Msg("notification not delivered")
		return
	}
	metrics.IncNotification(n.Type, "ok")
}

func transitionConflict(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%v: %w", err, ErrInvalidTransition)
	}
	return err
}

// StartOfDay returns midnight of now's calendar day in loc (UTC when nil).
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
