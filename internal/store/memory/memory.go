// Package memory is an in-process implementation of the store contracts.
// It backs local runs without DATABASE_URL and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

type Store struct {
	mu            sync.Mutex
	incidents     map[string]models.Incident
	assignments   map[string]models.Assignment
	technicians   map[string]models.Technician
	notifications []models.Notification
	predictions   []models.Prediction

	Now func() time.Time
}

func New() *Store {
	return &Store{
		incidents:   map[string]models.Incident{},
		assignments: map[string]models.Assignment{},
		technicians: map[string]models.Technician{},
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PutTechnician inserts or replaces a technician record.
func (s *Store) PutTechnician(t models.Technician) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.Now()
	}
	s.technicians[t.ID] = t
}

func (s *Store) UpsertTechnician(ctx context.Context, t models.Technician) (models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if existing, ok := s.technicians[t.ID]; ok {
		t.CurrentAssignments = existing.CurrentAssignments
	} else {
		t.CurrentAssignments = 0
	}
	if t.CurrentAssignments > t.MaxConcurrent {
		return models.Technician{}, fmt.Errorf("technician %s holds %d assignments, above %d: %w", t.ID, t.CurrentAssignments, t.MaxConcurrent, store.ErrCapacity)
	}
	t.UpdatedAt = s.Now()
	s.technicians[t.ID] = t
	return t, nil
}

// PutIncident stores an incident as-is, keeping its id and timestamps.
func (s *Store) PutIncident(i models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	s.incidents[i.ID] = i
}

func (s *Store) OpenIncidents(ctx context.Context) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Incident
	for _, i := range s.incidents {
		if i.Status.Open() {
			out = append(out, i)
		}
	}
	sortIncidents(out)
	return out, nil
}

func (s *Store) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Incident
	for _, i := range s.incidents {
		if filter.UserID != "" && i.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != "" && (i.AssignedTo == nil || *i.AssignedTo != filter.AssignedTo) {
			continue
		}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, store.ErrNotFound)
	}
	return i, nil
}

func (s *Store) CreateIncident(ctx context.Context, incident models.Incident) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createIncidentLocked(incident), nil
}

func (s *Store) CreateIncidentUnlessDuplicate(ctx context.Context, incident models.Incident, since time.Time) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.incidents {
		if similar(i, incident.Category, incident.Location, since) {
			return models.Incident{}, fmt.Errorf("incident %s: %w", i.ID, store.ErrDuplicate)
		}
	}
	return s.createIncidentLocked(incident), nil
}

func (s *Store) createIncidentLocked(incident models.Incident) models.Incident {
	now := s.Now()
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}
	if incident.SLAStartedAt.IsZero() {
		incident.SLAStartedAt = incident.CreatedAt
	}
	s.incidents[incident.ID] = incident
	return incident
}

func (s *Store) UpdateIncident(ctx context.Context, id string, patch models.IncidentPatch) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, store.ErrNotFound)
	}
	if patch.ExpectStatus != nil && i.Status != *patch.ExpectStatus {
		return models.Incident{}, fmt.Errorf("incident %s is %s: %w", id, i.Status, store.ErrConflict)
	}
	applyIncidentPatch(&i, patch)
	i.UpdatedAt = s.Now()
	s.incidents[id] = i
	return i, nil
}

func applyIncidentPatch(i *models.Incident, patch models.IncidentPatch) {
	if patch.Status != nil {
		i.Status = *patch.Status
	}
	if patch.Priority != nil {
		i.Priority = *patch.Priority
	}
	if patch.ClearAssignee {
		i.AssignedTo = nil
	}
	if patch.AssignedTo != nil {
		v := *patch.AssignedTo
		i.AssignedTo = &v
	}
	if patch.ResolvedAt != nil {
		v := *patch.ResolvedAt
		i.ResolvedAt = &v
	}
	if patch.Title != nil {
		i.Title = *patch.Title
	}
	if patch.Description != nil {
		i.Description = *patch.Description
	}
	if patch.Latitude != nil {
		v := *patch.Latitude
		i.Latitude = &v
	}
	if patch.Longitude != nil {
		v := *patch.Longitude
		i.Longitude = &v
	}
}

func (s *Store) FindDuplicate(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, i := range s.incidents {
		if !similar(i, category, location, since) {
			continue
		}
		if found == nil || i.CreatedAt.Before(found.CreatedAt) {
			match := i
			found = &match
		}
	}
	return found, nil
}

func (s *Store) FindOpenSimilar(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, i := range s.incidents {
		if !i.Status.Open() || !similar(i, category, location, since) {
			continue
		}
		if found == nil || i.CreatedAt.After(found.CreatedAt) ||
			(i.CreatedAt.Equal(found.CreatedAt) && i.ID > found.ID) {
			match := i
			found = &match
		}
	}
	return found, nil
}

func (s *Store) CountSimilar(ctx context.Context, category models.Category, location string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, i := range s.incidents {
		if similar(i, category, location, since) {
			n++
		}
	}
	return n, nil
}

func similar(i models.Incident, category models.Category, location string, since time.Time) bool {
	return i.Category == category &&
		strings.EqualFold(strings.TrimSpace(i.Location), strings.TrimSpace(location)) &&
		!i.CreatedAt.Before(since)
}

func (s *Store) CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[a.IncidentID]
	if !ok {
		return models.Assignment{}, fmt.Errorf("incident %s: %w", a.IncidentID, store.ErrNotFound)
	}
	for _, existing := range s.assignments {
		if existing.IncidentID == a.IncidentID && existing.Active() {
			return models.Assignment{}, fmt.Errorf("incident %s: %w", a.IncidentID, store.ErrAlreadyAssigned)
		}
	}
	now := s.Now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AssignmentScheduled
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	s.assignments[a.ID] = a

	techID := a.TechnicianID
	incident.AssignedTo = &techID
	incident.UpdatedAt = now
	s.incidents[incident.ID] = incident
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ActiveAssignment(ctx context.Context, incidentID string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.IncidentID == incidentID && a.Active() {
			match := a
			return &match, nil
		}
	}
	return nil, nil
}

func (s *Store) ListAssignments(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for _, a := range s.assignments {
		if filter.TechnicianID != "" && a.TechnicianID != filter.TechnicianID {
			continue
		}
		if filter.IncidentID != "" && a.IncidentID != filter.IncidentID {
			continue
		}
		if filter.ActiveOnly && !a.Active() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, evidence *string) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
	}
	if a.Status != from {
		return models.Assignment{}, fmt.Errorf("assignment %s is %s: %w", id, a.Status, store.ErrConflict)
	}
	now := s.Now()
	a.Status = to
	a.UpdatedAt = now
	if evidence != nil {
		v := *evidence
		a.CompletionEvidence = &v
	}
	if to == models.AssignmentCompleted {
		a.CompletedAt = &now
	}
	s.assignments[id] = a
	return a, nil
}

func (s *Store) SwapTechnician(ctx context.Context, assignmentID string, from, to string) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", assignmentID, store.ErrNotFound)
	}
	if !a.Active() || a.TechnicianID != from {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", assignmentID, store.ErrConflict)
	}
	oldTech, ok := s.technicians[from]
	if !ok {
		return models.Assignment{}, fmt.Errorf("technician %s: %w", from, store.ErrNotFound)
	}
	newTech, ok := s.technicians[to]
	if !ok {
		return models.Assignment{}, fmt.Errorf("technician %s: %w", to, store.ErrNotFound)
	}
	if newTech.CurrentAssignments+1 > newTech.MaxConcurrent {
		return models.Assignment{}, fmt.Errorf("technician %s: %w", to, store.ErrCapacity)
	}

	now := s.Now()
	newTech.CurrentAssignments++
	newTech.UpdatedAt = now
	if oldTech.CurrentAssignments > 0 {
		oldTech.CurrentAssignments--
	}
	oldTech.UpdatedAt = now
	s.technicians[to] = newTech
	s.technicians[from] = oldTech

	a.TechnicianID = to
	a.UpdatedAt = now
	s.assignments[assignmentID] = a

	if incident, ok := s.incidents[a.IncidentID]; ok {
		techID := to
		incident.AssignedTo = &techID
		incident.UpdatedAt = now
		s.incidents[incident.ID] = incident
	}
	return a, nil
}

func (s *Store) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Technician, 0, len(s.technicians))
	for _, t := range s.technicians {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentAssignments == out[j].CurrentAssignments {
			return out[i].ID < out[j].ID
		}
		return out[i].CurrentAssignments < out[j].CurrentAssignments
	})
	return out, nil
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.technicians[id]
	if !ok {
		return models.Technician{}, fmt.Errorf("technician %s: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (s *Store) AdjustLoad(ctx context.Context, id string, delta int) (models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.technicians[id]
	if !ok {
		return models.Technician{}, fmt.Errorf("technician %s: %w", id, store.ErrNotFound)
	}
	next := t.CurrentAssignments + delta
	if next < 0 || next > t.MaxConcurrent {
		return models.Technician{}, fmt.Errorf("technician %s load %d%+d: %w", id, t.CurrentAssignments, delta, store.ErrCapacity)
	}
	t.CurrentAssignments = next
	t.UpdatedAt = s.Now()
	s.technicians[id] = t
	return t, nil
}

// Emit records a notification; the store doubles as the in-process sink.
func (s *Store) Emit(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.Now()
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if filter.UserID != "" && n.UserID != filter.UserID {
			continue
		}
		if filter.Role != "" && n.Role != filter.Role {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SavePredictions(ctx context.Context, items []models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range items {
		replaced := false
		for i, existing := range s.predictions {
			if existing.Category == p.Category && strings.EqualFold(existing.Location, p.Location) {
				s.predictions[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			s.predictions = append(s.predictions, p)
		}
	}
	return nil
}

// Predictions returns the latest forecast per category and location, soonest
// failure first.
func (s *Store) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Prediction, len(s.predictions))
	copy(out, s.predictions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysToNextFailure < out[j].DaysToNextFailure
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Notifications returns every recorded notification in emit order.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func sortIncidents(items []models.Incident) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
