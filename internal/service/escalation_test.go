package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

func TestEscalationTickEscalatesAndAssigns(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryWater, 0, 3)
	f.incident("fresh", models.CategoryWater, "Block A", 2*time.Minute)
	f.incident("late", models.CategoryWater, "Block B", 20*time.Minute)

	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, report.Critical)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 1, report.Assigned)
	assert.Zero(t, report.Failed)

	late, err := f.store.GetIncident(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, late.Priority)
	require.NotNil(t, late.AssignedTo)
	assert.Equal(t, "t1", *late.AssignedTo)
	assert.Equal(t, models.StatusNew, late.Status)

	fresh, err := f.store.GetIncident(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, PriorityLow, fresh.Priority)
	assert.Nil(t, fresh.AssignedTo)

	escalated := f.notificationsOf(models.NotificationIncidentEscalated)
	require.Len(t, escalated, 1)
	assert.Equal(t, models.RoleAdmin, escalated[0].Role)
}

func TestEscalationTickIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryWater, 0, 3)
	f.incident("late", models.CategoryWater, "Block B", 20*time.Minute)

	_, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Minute)
	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Critical)
	assert.Zero(t, report.Escalated)
	assert.Zero(t, report.Assigned)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, f.load(t, "t1"))
	assert.Len(t, f.notificationsOf(models.NotificationIncidentEscalated), 1)
	assert.Len(t, f.notificationsOf(models.NotificationTechnicianAssigned), 1)
}

func TestEscalationTickIsolatesFailuresAndOrdersByUrgency(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryElectricity, 0, 1)
	f.incident("bins", models.CategoryGarbage, "Canteen", 40*time.Minute)
	f.incident("power", models.CategoryElectricity, "Block C", 20*time.Minute)

	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Critical)
	assert.Equal(t, 2, report.Escalated)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bins", report.Failures[0].IncidentID)
	assert.Equal(t, "NO_ELIGIBLE_TECHNICIAN", report.Failures[0].Code)

	power, err := f.store.GetIncident(context.Background(), "power")
	require.NoError(t, err)
	require.NotNil(t, power.AssignedTo)
	bins, err := f.store.GetIncident(context.Background(), "bins")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, bins.Priority)
	assert.Nil(t, bins.AssignedTo)
}

func TestEscalationTickSkipsResolved(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryWater, 0, 3)
	done := f.incident("done", models.CategoryWater, "Block A", time.Hour)
	done.Status = models.StatusResolved
	f.store.PutIncident(done)

	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
	assert.Zero(t, f.load(t, "t1"))
}

func TestEscalationTickWarnsOncePerEntry(t *testing.T) {
	f := newFixture(t)
	warm := f.incident("warm", models.CategoryIT, "Lab", 12*time.Minute)

	for i := 0; i < 2; i++ {
		report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Warning)
	}
	assert.Len(t, f.notificationsOf(models.NotificationSLAWarning), 1)

	reset := warm
	reset.SLAStartedAt = f.now
	f.store.PutIncident(reset)
	_, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)

	f.store.PutIncident(warm)
	_, err = f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	assert.Len(t, f.notificationsOf(models.NotificationSLAWarning), 2)
}

type brokenIncidents struct {
	store.IncidentStore
}

func (brokenIncidents) OpenIncidents(ctx context.Context) ([]models.Incident, error) {
	return nil, store.ErrUnavailable
}

func TestEscalationTickFailsWhenIncidentsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.escalator.Incidents = brokenIncidents{IncidentStore: f.store}

	_, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "STORE_UNAVAILABLE", ErrorCode(err))
}

func TestEscalationTickRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.incident("late", models.CategoryWater, "Block B", 20*time.Minute)

	f.escalator.running.Lock()
	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	f.escalator.running.Unlock()

	require.ErrorIs(t, err, ErrTickInProgress)
	assert.True(t, report.Skipped)
	late, _ := f.store.GetIncident(context.Background(), "late")
	assert.Equal(t, PriorityLow, late.Priority)
}

type stubLock struct {
	ok       bool
	err      error
	released int
}

func (l *stubLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

func TestEscalationTickHonoursSharedLock(t *testing.T) {
	f := newFixture(t)
	f.incident("late", models.CategoryWater, "Block B", 20*time.Minute)

	held := &stubLock{ok: false}
	f.escalator.Lock = held
	_, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.ErrorIs(t, err, ErrTickInProgress)

	f.escalator.Lock = &stubLock{err: errors.New("redis down")}
	_, err = f.escalator.RunEscalationTick(context.Background(), f.now)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTickInProgress)

	free := &stubLock{ok: true}
	f.escalator.Lock = free
	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 1, free.released)
}

func TestEscalationTickProcessesPredictions(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryElectricity, 0, 3)
	require.NoError(t, f.store.SavePredictions(context.Background(), []models.Prediction{
		{Location: "Block D", Category: models.CategoryElectricity, DaysToNextFailure: 4, Confidence: 0.8},
		{Location: "Block E", Category: models.CategoryElectricity, DaysToNextFailure: 90, Confidence: 0.8},
	}))
	f.escalator.Predictions = f.store
	f.escalator.ProcessPredictions = true

	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	require.NotNil(t, report.Alerts)
	assert.Equal(t, 1, report.Alerts.Assigned)
	assert.Equal(t, 1, f.load(t, "t1"))
}

type failingPredictions struct{}

func (failingPredictions) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	return nil, errors.New("scorer timeout")
}

func TestEscalationTickSurvivesPredictionOutage(t *testing.T) {
	f := newFixture(t)
	f.technician("t1", models.CategoryWater, 0, 3)
	f.incident("late", models.CategoryWater, "Block B", 20*time.Minute)
	f.escalator.Predictions = failingPredictions{}
	f.escalator.ProcessPredictions = true

	report, err := f.escalator.RunEscalationTick(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, "scorer timeout", report.AlertsError)
	assert.Nil(t, report.Alerts)
}

func TestRunnerStartStop(t *testing.T) {
	f := newFixture(t)
	runner := &Runner{Escalator: f.escalator, Interval: time.Hour, Logger: zerolog.Nop()}
	require.NoError(t, runner.Start(context.Background()))

	select {
	case <-runner.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
