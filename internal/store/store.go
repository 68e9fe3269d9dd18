// Package store declares the persistence contracts the service layer runs on.
// internal/db implements them on Postgres and internal/store/memory in process.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/campusfix/backend/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyAssigned = errors.New("incident already has an active assignment")
	ErrCapacity        = errors.New("technician capacity exceeded")
	ErrConflict        = errors.New("concurrent modification")
	ErrUnavailable     = errors.New("store unavailable")
	ErrDuplicate       = errors.New("an incident for this category and location already exists today")
)

type IncidentStore interface {
	OpenIncidents(ctx context.Context) ([]models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	CreateIncident(ctx context.Context, incident models.Incident) (models.Incident, error)
	// CreateIncidentUnlessDuplicate inserts incident unless one with the same
	// category and location was created at or after since. The check and the
	// insert are atomic; a match fails with ErrDuplicate.
	CreateIncidentUnlessDuplicate(ctx context.Context, incident models.Incident, since time.Time) (models.Incident, error)
	// UpdateIncident applies patch. With ExpectStatus set it fails with
	// ErrConflict when the stored status differs.
	UpdateIncident(ctx context.Context, id string, patch models.IncidentPatch) (models.Incident, error)
	// FindDuplicate returns the earliest incident for category and location
	// created at or after since, whatever its status.
	FindDuplicate(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error)
	// FindOpenSimilar is FindDuplicate restricted to open incidents, newest
	// first.
	FindOpenSimilar(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error)
	CountSimilar(ctx context.Context, category models.Category, location string, since time.Time) (int, error)
}

type AssignmentStore interface {
	// CreateAssignment records a as the active assignment of its incident and
	// sets the incident's assigned_to in the same write. A second active
	// assignment for the incident fails with ErrAlreadyAssigned.
	CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	ActiveAssignment(ctx context.Context, incidentID string) (*models.Assignment, error)
	ListAssignments(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error)
	// UpdateAssignmentStatus moves from -> to and fails with ErrConflict when
	// the stored status is not from.
	UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, evidence *string) (models.Assignment, error)
	// SwapTechnician moves an active assignment from one technician to another
	// together with both load counters, or changes nothing.
	SwapTechnician(ctx context.Context, assignmentID string, from, to string) (models.Assignment, error)
}

type TechnicianRegistry interface {
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	GetTechnician(ctx context.Context, id string) (models.Technician, error)
	// AdjustLoad adds delta to current_assignments only when the result stays
	// within [0, max_concurrent]; otherwise it returns ErrCapacity.
	AdjustLoad(ctx context.Context, id string, delta int) (models.Technician, error)
	// UpsertTechnician writes the roster fields of t. The load counter of an
	// existing technician is kept.
	UpsertTechnician(ctx context.Context, t models.Technician) (models.Technician, error)
}

type NotificationStore interface {
	Emit(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
}

type PredictionStore interface {
	SavePredictions(ctx context.Context, items []models.Prediction) error
	Predictions(ctx context.Context, limit int) ([]models.Prediction, error)
}

// Store is the full persistence surface used by the HTTP layer.
type Store interface {
	IncidentStore
	AssignmentStore
	TechnicianRegistry
	NotificationStore
	PredictionStore
	Ping(ctx context.Context) error
}
