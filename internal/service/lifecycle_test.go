package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/backend/internal/geocode"
	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

func validIncident() NewIncident {
	return NewIncident{
		UserID:      "student-1",
		Title:       "No water",
		Category:    models.CategoryWater,
		Description: "Taps are dry on the second floor",
		Location:    " Hostel B ",
	}
}

func TestCreateIncidentDefaults(t *testing.T) {
	f := newFixture(t)
	created, err := f.incidents.CreateIncident(context.Background(), validIncident())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusNew, created.Status)
	assert.Equal(t, PriorityLow, created.Priority)
	assert.Equal(t, "Hostel B", created.Location)
	assert.True(t, created.SLAStartedAt.Equal(testNow))
	assert.Nil(t, created.AssignedTo)
}

func TestCreateIncidentMissingFields(t *testing.T) {
	f := newFixture(t)
	in := validIncident()
	in.Title = " "
	in.Location = ""

	_, err := f.incidents.CreateIncident(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "location, title")

	in = validIncident()
	in.Category = "roof"
	_, err = f.incidents.CreateIncident(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateIncidentRejectsSameDayDuplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.incidents.CreateIncident(context.Background(), validIncident())
	require.NoError(t, err)

	dup := validIncident()
	dup.Location = "hostel b"
	dup.UserID = "student-2"
	_, err = f.incidents.CreateIncident(context.Background(), dup)
	require.ErrorIs(t, err, ErrDuplicateIncident)

	other := validIncident()
	other.Category = models.CategoryElectricity
	_, err = f.incidents.CreateIncident(context.Background(), other)
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.incidents.CreateIncident(context.Background(), validIncident())
	require.NoError(t, err)
}

func TestCreateIncidentConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.incidents.CreateIncident(context.Background(), validIncident())
			if err != nil {
				assert.ErrorIs(t, err, ErrDuplicateIncident)
				return
			}
			mu.Lock()
			success++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	all, err := f.store.ListIncidents(context.Background(), models.IncidentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

type stubGeocoder struct {
	point geocode.Point
	err   error
	calls int
}

func (g *stubGeocoder) Geocode(ctx context.Context, query string) (geocode.Point, error) {
	g.calls++
	return g.point, g.err
}

func TestCreateIncidentGeocodes(t *testing.T) {
	f := newFixture(t)
	geo := &stubGeocoder{point: geocode.Point{Lat: 51.1, Lon: 71.4}}
	f.incidents.Geocoder = geo

	created, err := f.incidents.CreateIncident(context.Background(), validIncident())
	require.NoError(t, err)
	require.NotNil(t, created.Latitude)
	assert.InDelta(t, 51.1, *created.Latitude, 1e-9)
	assert.Equal(t, 1, geo.calls)
}

func TestCreateIncidentIgnoresGeocoderFailure(t *testing.T) {
	f := newFixture(t)
	f.incidents.Geocoder = &stubGeocoder{err: errors.New("rate limited")}

	created, err := f.incidents.CreateIncident(context.Background(), validIncident())
	require.NoError(t, err)
	assert.Nil(t, created.Latitude)
}

func TestTransitionOneStepAtATime(t *testing.T) {
	f := newFixture(t)
	f.incident("i1", models.CategoryIT, "Lab", time.Minute)

	_, err := f.incidents.Transition(context.Background(), "i1", models.StatusResolved, "photo.jpg")
	require.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := f.incidents.Transition(context.Background(), "i1", models.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusNew, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusResolved, "")
	require.ErrorIs(t, err, ErrEvidenceRequired)

	updated, err = f.incidents.Transition(context.Background(), "i1", models.StatusResolved, "photo.jpg")
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)

	closed, err := f.incidents.Close(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	_, err = f.incidents.Close(context.Background(), "i1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Len(t, f.notificationsOf(models.NotificationStatusChanged), 3)
}

func TestTransitionUnknownIncident(t *testing.T) {
	f := newFixture(t)
	_, err := f.incidents.Transition(context.Background(), "missing", models.StatusInProgress, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionKeepsAssignmentInStep(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryIT, 0, 2)
	incident := f.incident("i1", models.CategoryIT, "Lab", time.Minute)
	a, err := f.engine.Assign(context.Background(), incident)
	require.NoError(t, err)

	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusInProgress, "")
	require.NoError(t, err)
	current, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInProgress, current.Status)

	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusResolved, "fixed.jpg")
	require.NoError(t, err)
	current, err = f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentCompleted, current.Status)
	assert.Equal(t, 0, f.load(t, "t1"))
}

// completionFailing refuses to complete assignments.
type completionFailing struct {
	store.AssignmentStore
}

func (c completionFailing) UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, evidence *string) (models.Assignment, error) {
	if to == models.AssignmentCompleted {
		return models.Assignment{}, store.ErrUnavailable
	}
	return c.AssignmentStore.UpdateAssignmentStatus(ctx, id, from, to, evidence)
}

func TestTransitionResolveLeavesIncidentOpenWhenCompletionFails(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryIT, 0, 2)
	incident := f.incident("i1", models.CategoryIT, "Lab", time.Minute)
	a, err := f.engine.Assign(context.Background(), incident)
	require.NoError(t, err)
	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusInProgress, "")
	require.NoError(t, err)

	failing := completionFailing{AssignmentStore: f.store}
	f.engine.Assignments = failing
	f.incidents.Assignments = failing

	_, err = f.incidents.Transition(context.Background(), "i1", models.StatusResolved, "fixed.jpg")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	stored, err := f.store.GetIncident(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Nil(t, stored.ResolvedAt)
	current, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInProgress, current.Status)
	assert.Equal(t, 1, f.load(t, "t1"))
}

func TestClassifyCountsRecentSimilarReports(t *testing.T) {
	f := newFixture(t)
	target := f.incident("i1", models.CategoryHostel, "Hostel A", 10*time.Minute)
	f.incident("i2", models.CategoryHostel, "hostel a", 2*24*time.Hour)
	f.incident("i3", models.CategoryHostel, "Hostel A", 3*24*time.Hour)
	f.incident("i4", models.CategoryHostel, "Hostel A", 10*24*time.Hour)

	p, err := f.incidents.Classify(context.Background(), target, f.now)
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p.Level)
}
