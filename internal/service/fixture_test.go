package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store/memory"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	engine    *AssignmentEngine
	incidents *IncidentService
	escalator *Escalator
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: testNow}
	clock := func() time.Time { return f.now }
	f.store.Now = clock
	f.engine = &AssignmentEngine{
		Incidents:   f.store,
		Assignments: f.store,
		Registry:    f.store,
		Notifier:    f.store,
		Logger:      zerolog.Nop(),
		Now:         clock,
	}
	f.incidents = &IncidentService{
		Incidents:   f.store,
		Assignments: f.store,
		Engine:      f.engine,
		Notifier:    f.store,
		Logger:      zerolog.Nop(),
		Now:         clock,
	}
	f.escalator = &Escalator{
		Incidents: f.store,
		Engine:    f.engine,
		SLA:       NewSLAEngine(15 * time.Minute),
		Notifier:  f.store,
		Logger:    zerolog.Nop(),
	}
	return f
}

func (f *fixture) technician(id string, spec models.Category, load, max int) {
	f.store.PutTechnician(models.Technician{
		ID:                 id,
		Name:               "Tech " + id,
		Specialization:     spec,
		Active:             true,
		Available:          true,
		CurrentAssignments: load,
		MaxConcurrent:      max,
	})
}

// incident stores an open incident whose SLA clock started age ago.
func (f *fixture) incident(id string, category models.Category, location string, age time.Duration) models.Incident {
	started := f.now.Add(-age)
	i := models.Incident{
		ID:           id,
		UserID:       "student-1",
		Title:        "Incident " + id,
		Category:     category,
		Description:  "broken",
		Location:     location,
		Status:       models.StatusNew,
		Priority:     PriorityLow,
		CreatedAt:    started,
		UpdatedAt:    started,
		SLAStartedAt: started,
	}
	f.store.PutIncident(i)
	return i
}

func (f *fixture) load(t *testing.T, id string) int {
	t.Helper()
	tech, err := f.store.GetTechnician(context.Background(), id)
	if err != nil {
		t.Fatalf("get technician %s: %v", id, err)
	}
	return tech.CurrentAssignments
}

func (f *fixture) notificationsOf(kind string) []models.Notification {
	var out []models.Notification
	for _, n := range f.store.Notifications() {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}
