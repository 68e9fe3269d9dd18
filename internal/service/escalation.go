package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusfix/backend/internal/metrics"
	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

const (
	DefaultEscalationInterval = 2 * time.Minute
	DefaultPredictionLimit    = 100
)

type PredictionSource interface {
	Predictions(ctx context.Context, limit int) ([]models.Prediction, error)
}

// TickLocker guards a tick across processes. ok is false when another holder
// owns the lock.
type TickLocker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

type TickFailure struct {
	IncidentID string `json:"incident_id"`
	Code       string `json:"code"`
	Error      string `json:"error"`
}

type TickReport struct {
	StartedAt   time.Time     `json:"started_at"`
	DurationMs  int64         `json:"duration_ms"`
	Evaluated   int           `json:"evaluated"`
	OK          int           `json:"ok"`
	Warning     int           `json:"warning"`
	Critical    int           `json:"critical"`
	Escalated   int           `json:"escalated"`
	Assigned    int           `json:"assigned"`
	Failed      int           `json:"failed"`
	Failures    []TickFailure `json:"failures,omitempty"`
	Alerts      *BatchResult  `json:"alerts,omitempty"`
	AlertsError string        `json:"alerts_error,omitempty"`
	Skipped     bool          `json:"skipped"`
}

// Escalator runs the periodic SLA pass: critical incidents are raised to top
// priority and handed to the assignment engine.
type Escalator struct {
	Incidents   store.IncidentStore
	Engine      *AssignmentEngine
	SLA         SLAEngine
	Predictions PredictionSource
	Notifier    Notifier
	Lock        TickLocker
	Logger      zerolog.Logger

	ProcessPredictions bool
	PredictionLimit    int
	CriticalDays       float64
	RecurrenceWindow   time.Duration
	TickTimeout        time.Duration

	running sync.Mutex

	warnMu sync.Mutex
	warned map[string]struct{}
}

// RunEscalationTick evaluates every open incident once. A tick that overlaps
// a running one returns ErrTickInProgress without touching anything.
func (s *Escalator) RunEscalationTick(ctx context.Context, now time.Time) (TickReport, error) {
	report := TickReport{StartedAt: now}
	if !s.running.TryLock() {
		report.Skipped = true
		metrics.ObserveTick("skipped", 0)
		return report, ErrTickInProgress
	}
	defer s.running.Unlock()

	if s.Lock != nil {
		unlock, ok, err := s.Lock.TryLock(ctx)
		if err != nil {
			report.Skipped = true
			metrics.ObserveTick("error", 0)
			return report, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !ok {
			report.Skipped = true
			metrics.ObserveTick("skipped", 0)
			return report, ErrTickInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.Logger.Warn().Err(err).Msg("release tick lock failed")
			}
		}()
	}

	if s.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TickTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("service").Start(ctx, "escalation.tick")
	defer span.End()

	started := time.Now()
	err := s.tick(ctx, now, &report)
	report.DurationMs = time.Since(started).Milliseconds()
	span.SetAttributes(
		attribute.Int("tick.evaluated", report.Evaluated),
		attribute.Int("tick.critical", report.Critical),
		attribute.Int("tick.escalated", report.Escalated),
		attribute.Int("tick.failed", report.Failed),
	)
	if err != nil {
		span.RecordError(err)
		metrics.ObserveTick("error", time.Since(started))
		return report, err
	}
	metrics.ObserveTick("ok", time.Since(started))
	return report, nil
}

func (s *Escalator) tick(ctx context.Context, now time.Time, report *TickReport) error {
	incidents, err := s.Incidents.OpenIncidents(ctx)
	if err != nil {
		return fmt.Errorf("load open incidents: %w", err)
	}

	warning := map[string]struct{}{}
	for _, incident := range s.prioritize(ctx, incidents, now) {
		eval, ok := s.SLA.Evaluate(incident, now)
		if !ok {
			continue
		}
		report.Evaluated++
		switch eval.State {
		case SLAOk:
			report.OK++
		case SLAWarning:
			report.Warning++
			warning[incident.ID] = struct{}{}
			s.warnOnce(ctx, incident, eval)
		case SLACritical:
			report.Critical++
			if err := s.escalate(ctx, incident, eval, report); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, TickFailure{
					IncidentID: incident.ID,
					Code:       ErrorCode(err),
					Error:      err.Error(),
				})
				s.Logger.Error().Err(err).Str("incident_id", incident.ID).Msg("escalation failed")
			}
		}
	}
	s.forgetWarnings(warning)

	metrics.SetSLAState(string(SLAOk), report.OK)
	metrics.SetSLAState(string(SLAWarning), report.Warning)
	metrics.SetSLAState(string(SLACritical), report.Critical)

	if s.ProcessPredictions && s.Predictions != nil && s.Engine != nil {
		s.processPredictions(ctx, report)
	}

	s.Logger.Info().
		Int("evaluated", report.Evaluated).
		Int("warning", report.Warning).
		Int("critical", report.Critical).
		Int("escalated", report.Escalated).
		Int("assigned", report.Assigned).
		Int("failed", report.Failed).
		Msg("escalation tick finished")
	return nil
}

type rankedIncident struct {
	incident models.Incident
	level    int
}

// prioritize orders incidents most urgent first. Ties keep the oldest first.
func (s *Escalator) prioritize(ctx context.Context, incidents []models.Incident, now time.Time) []models.Incident {
	ranked := make([]rankedIncident, 0, len(incidents))
	for _, incident := range incidents {
		recurrence, err := recurrenceOf(ctx, s.Incidents, incident, now, s.RecurrenceWindow)
		if err != nil {
			s.Logger.Warn().Err(err).Str("incident_id", incident.ID).Msg("recurrence lookup failed")
		}
		p := Classify(PriorityInput{
			Category:   incident.Category,
			Location:   incident.Location,
			CreatedAt:  incident.CreatedAt,
			Recurrence: recurrence,
		}, now)
		level := p.Level
		if incident.Priority > level {
			level = incident.Priority
		}
		ranked = append(ranked, rankedIncident{incident: incident, level: level})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].level != ranked[j].level {
			return ranked[i].level > ranked[j].level
		}
		ci, cj := ranked[i].incident.SLAStart(), ranked[j].incident.SLAStart()
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return ranked[i].incident.ID < ranked[j].incident.ID
	})
	out := make([]models.Incident, len(ranked))
	for i, r := range ranked {
		out[i] = r.incident
	}
	return out
}

func (s *Escalator) escalate(ctx context.Context, incident models.Incident, eval SLAEvaluation, report *TickReport) error {
	if incident.Priority < PriorityCritical {
		level := PriorityCritical
		current := incident.Status
		updated, err := s.Incidents.UpdateIncident(ctx, incident.ID, models.IncidentPatch{
			Priority:     &level,
			ExpectStatus: &current,
		})
		if errors.Is(err, store.ErrConflict) {
			// Status moved on since the snapshot; the next tick sees the new state.
			return nil
		}
		if err != nil {
			return fmt.Errorf("raise priority: %w", err)
		}
		incident = updated
		report.Escalated++
		metrics.IncEscalation()
		s.Logger.Warn().
			Str("incident_id", incident.ID).
			Int("elapsed_minutes", eval.ElapsedMinutes).
			Float64("percentage_used", eval.RawPercentage).
			Msg("incident escalated")
		emitNotification(ctx, s.Notifier, s.Logger, models.Notification{
			Role:    models.RoleAdmin,
			Type:    models.NotificationIncidentEscalated,
			Message: fmt.Sprintf("SLA breached: %s (%d min)", incident.Title, eval.ElapsedMinutes),
			Metadata: map[string]any{
				"incident_id":     incident.ID,
				"elapsed_minutes": eval.ElapsedMinutes,
				"sla_minutes":     eval.BudgetMinutes,
			},
		})
	}

	if incident.IsAssigned() || s.Engine == nil {
		return nil
	}
	if _, err := s.Engine.Assign(ctx, incident); err != nil {
		if errors.Is(err, ErrAlreadyAssigned) {
			return nil
		}
		return fmt.Errorf("assign: %w", err)
	}
	report.Assigned++
	return nil
}

// warnOnce notifies admins the first tick an incident is seen in the warning
// band.
func (s *Escalator) warnOnce(ctx context.Context, incident models.Incident, eval SLAEvaluation) {
	s.warnMu.Lock()
	if s.warned == nil {
		s.warned = map[string]struct{}{}
	}
	_, seen := s.warned[incident.ID]
	s.warned[incident.ID] = struct{}{}
	s.warnMu.Unlock()
	if seen {
		return
	}
	emitNotification(ctx, s.Notifier, s.Logger, models.Notification{
		Role:    models.RoleAdmin,
		Type:    models.NotificationSLAWarning,
		Message: fmt.Sprintf("SLA at %.0f%%: %s", eval.PercentageUsed, incident.Title),
		Metadata: map[string]any{
			"incident_id":     incident.ID,
			"percentage_used": eval.PercentageUsed,
			"sla_deadline":    eval.Deadline,
		},
	})
}

func (s *Escalator) forgetWarnings(current map[string]struct{}) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	for id := range s.warned {
		if _, ok := current[id]; !ok {
			delete(s.warned, id)
		}
	}
}

func (s *Escalator) processPredictions(ctx context.Context, report *TickReport) {
	limit := s.PredictionLimit
	if limit <= 0 {
		limit = DefaultPredictionLimit
	}
	predictions, err := s.Predictions.Predictions(ctx, limit)
	if err != nil {
		report.AlertsError = err.Error()
		s.Logger.Error().Err(err).Msg("fetch predictions failed")
		return
	}
	threshold := s.CriticalDays
	if threshold <= 0 {
		threshold = s.Engine.criticalDays()
	}
	batch := s.Engine.ProcessCriticalAlerts(ctx, CriticalAlerts(predictions, threshold))
	report.Alerts = &batch
}

// Runner drives the escalator from a cron schedule. Overlapping runs are
// dropped by the cron chain before they reach the escalator.
type Runner struct {
	Escalator *Escalator
	Interval  time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time

	cron *cron.Cron
}

func (r *Runner) Start(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultEscalationInterval
	}
	logger := r.Logger.With().Str("component", "escalation-runner").Logger()
	cronLogger := cron.PrintfLogger(&logger)
	r.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := r.cron.AddFunc("@every "+interval.String(), func() { r.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule escalation: %w", err)
	}
	r.cron.Start()
	logger.Info().Dur("interval", interval).Msg("escalation runner started")
	return nil
}

// Stop halts the schedule and returns a context done once the running tick,
// if any, has finished.
func (r *Runner) Stop() context.Context {
	if r.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	_, err := r.Escalator.RunEscalationTick(ctx, now)
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		r.Logger.Debug().Msg("escalation tick skipped, previous still running")
	default:
		r.Logger.Error().Err(err).Msg("escalation tick failed")
	}
}
