package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusfix/backend/internal/geocode"
	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

const DefaultRecurrenceWindow = 7 * 24 * time.Hour

type NewIncident struct {
	UserID      string          `json:"user_id" validate:"required"`
	Title       string          `json:"title" validate:"required,max=200"`
	Category    models.Category `json:"category" validate:"required,oneof=water electricity garbage it hostel"`
	Description string          `json:"description" validate:"required"`
	Location    string          `json:"location" validate:"required"`
	ImageURL    *string         `json:"image_url,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64        `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}

// IncidentService owns intake and the incident status state machine.
type IncidentService struct {
	Incidents   store.IncidentStore
	Assignments store.AssignmentStore
	Engine      *AssignmentEngine
	Notifier    Notifier
	Geocoder    geocode.Geocoder
	Logger      zerolog.Logger

	Campus           string
	RecurrenceWindow time.Duration
	Location         *time.Location
	Now              func() time.Time
}

func (s *IncidentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateIncident files a new report. A second report for the same category
// and location on the same calendar day is rejected.
func (s *IncidentService) CreateIncident(ctx context.Context, in NewIncident) (models.Incident, error) {
	if err := checkNewIncident(in); err != nil {
		return models.Incident{}, err
	}
	now := s.now()
	location := strings.TrimSpace(in.Location)
	dayStart := StartOfDay(now, s.Location)

	// Early answer for the common case, before spending a geocoder call.
	dup, err := s.Incidents.FindDuplicate(ctx, in.Category, location, dayStart)
	if err != nil {
		return models.Incident{}, fmt.Errorf("duplicate check: %w", err)
	}
	if dup != nil {
		return models.Incident{}, fmt.Errorf("incident %s: %w", dup.ID, ErrDuplicateIncident)
	}

	incident := models.Incident{
		UserID:       strings.TrimSpace(in.UserID),
		Title:        strings.TrimSpace(in.Title),
		Category:     in.Category,
		Description:  strings.TrimSpace(in.Description),
		ImageURL:     in.ImageURL,
		Location:     location,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Status:       models.StatusNew,
		Priority:     PriorityLow,
		CreatedAt:    now,
		UpdatedAt:    now,
		SLAStartedAt: now,
	}
	s.locate(ctx, &incident)

	created, err := s.Incidents.CreateIncidentUnlessDuplicate(ctx, incident, dayStart)
	if err != nil {
		return models.Incident{}, fmt.Errorf("create incident: %w", err)
	}
	s.Logger.Info().
		Str("incident_id", created.ID).
		Str("category", string(created.Category)).
		Str("location", created.Location).
		Msg("incident created")
	return created, nil
}

func checkNewIncident(in NewIncident) error {
	var missing []string
	for name, v := range map[string]string{
		"user_id":     in.UserID,
		"title":       in.Title,
		"description": in.Description,
		"location":    in.Location,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), ErrInvalidInput)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("unknown category %q: %w", in.Category, ErrInvalidInput)
	}
	return nil
}

// locate fills coordinates from the geocoder. Failures only cost the
// coordinates.
func (s *IncidentService) locate(ctx context.Context, incident *models.Incident) {
	if s.Geocoder == nil || !geocode.ShouldGeocode(*incident) {
		return
	}
	point, err := s.Geocoder.Geocode(ctx, geocode.BuildQuery(s.Campus, incident.Location))
	if err != nil {
		s.Logger.Warn().Err(err).Str("location", incident.Location).Msg("geocode failed")
		return
	}
	incident.Latitude = &point.Lat
	incident.Longitude = &point.Lon
}

// Classify computes the current priority of an incident, counting other
// reports of the same category and location inside the recurrence window.
func (s *IncidentService) Classify(ctx context.Context, incident models.Incident, now time.Time) (Priority, error) {
	recurrence, err := recurrenceOf(ctx, s.Incidents, incident, now, s.RecurrenceWindow)
	if err != nil {
		return NewPriority(incident.Priority), err
	}
	return Classify(PriorityInput{
		Category:   incident.Category,
		Location:   incident.Location,
		CreatedAt:  incident.CreatedAt,
		Recurrence: recurrence,
	}, now), nil
}

func recurrenceOf(ctx context.Context, incidents store.IncidentStore, incident models.Incident, now time.Time, window time.Duration) (int, error) {
	if window <= 0 {
		window = DefaultRecurrenceWindow
	}
	since := now.Add(-window)
	n, err := incidents.CountSimilar(ctx, incident.Category, incident.Location, since)
	if err != nil {
		return 0, fmt.Errorf("count similar incidents: %w", err)
	}
	if !incident.CreatedAt.Before(since) && n > 0 {
		n--
	}
	return n, nil
}

// Transition moves an incident exactly one step along
// new -> in-progress -> resolved -> closed. Resolving needs completion
// evidence; the active assignment is completed before the incident moves, so
// a failed completion leaves both untouched.
func (s *IncidentService) Transition(ctx context.Context, incidentID string, to models.Status, evidence string) (models.Incident, error) {
	incident, err := s.Incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return models.Incident{}, err
	}
	from := incident.Status
	if !from.CanTransition(to) {
		return models.Incident{}, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	evidence = strings.TrimSpace(evidence)
	if to == models.StatusResolved && evidence == "" {
		return models.Incident{}, ErrEvidenceRequired
	}

	patch := models.IncidentPatch{Status: &to, ExpectStatus: &from}
	if to == models.StatusResolved {
		if err := s.completeAssignment(ctx, incident.ID, evidence); err != nil {
			return models.Incident{}, err
		}
		resolvedAt := s.now()
		patch.ResolvedAt = &resolvedAt
	}
	updated, err := s.Incidents.UpdateIncident(ctx, incident.ID, patch)
	if err != nil {
		return models.Incident{}, transitionConflict(err)
	}
	s.Logger.Info().
		Str("incident_id", updated.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("incident status changed")

	if to == models.StatusInProgress {
		if err := s.startAssignment(ctx, updated.ID); err != nil {
			return updated, err
		}
	}
	emitNotification(ctx, s.Notifier, s.Logger, statusNotification(updated, from))
	return updated, nil
}

// Close is the administrative resolved -> closed step.
func (s *IncidentService) Close(ctx context.Context, incidentID string) (models.Incident, error) {
	return s.Transition(ctx, incidentID, models.StatusClosed, "")
}

// startAssignment moves a scheduled active assignment along with its
// incident.
func (s *IncidentService) startAssignment(ctx context.Context, incidentID string) error {
	active, err := s.activeAssignment(ctx, incidentID)
	if err != nil || active == nil || active.Status != models.AssignmentScheduled {
		return err
	}
	_, err = s.Assignments.UpdateAssignmentStatus(ctx, active.ID, models.AssignmentScheduled, models.AssignmentInProgress, nil)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("start assignment: %w", err)
	}
	return nil
}

// completeAssignment finishes the active assignment, if any, and frees the
// technician's slot.
func (s *IncidentService) completeAssignment(ctx context.Context, incidentID, evidence string) error {
	if s.Engine == nil {
		return nil
	}
	active, err := s.activeAssignment(ctx, incidentID)
	if err != nil || active == nil {
		return err
	}
	if _, err := s.Engine.finish(ctx, *active, evidence); err != nil {
		return fmt.Errorf("complete assignment: %w", err)
	}
	return nil
}

func (s *IncidentService) activeAssignment(ctx context.Context, incidentID string) (*models.Assignment, error) {
	if s.Assignments == nil {
		return nil, nil
	}
	active, err := s.Assignments.ActiveAssignment(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("load active assignment: %w", err)
	}
	return active, nil
}
