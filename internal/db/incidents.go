package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

const incidentColumns = `id, user_id, title, category, description, image_url, location, latitude, longitude,
	status, priority, assigned_to, created_at, updated_at, resolved_at, sla_started_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var i models.Incident
	err := row.Scan(&i.ID, &i.UserID, &i.Title, &i.Category, &i.Description, &i.ImageURL, &i.Location,
		&i.Latitude, &i.Longitude, &i.Status, &i.Priority, &i.AssignedTo, &i.CreatedAt, &i.UpdatedAt,
		&i.ResolvedAt, &i.SLAStartedAt)
	return i, err
}

func collectIncidents(rows pgx.Rows) ([]models.Incident, error) {
	defer rows.Close()
	var out []models.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) OpenIncidents(ctx context.Context) ([]models.Incident, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE status IN ('new', 'in-progress')
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, wrapErr("open incidents", err)
	}
	out, err := collectIncidents(rows)
	return out, wrapErr("open incidents", err)
}

func (s *Store) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	var wheres []string
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		wheres = append(wheres, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		wheres = append(wheres, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list incidents", err)
	}
	out, err := collectIncidents(rows)
	return out, wrapErr("list incidents", err)
}

func (s *Store) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	i, err := scanIncident(s.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		return models.Incident{}, wrapErr("incident "+id, err)
	}
	return i, nil
}

func (s *Store) CreateIncident(ctx context.Context, incident models.Incident) (models.Incident, error) {
	created, err := insertIncident(ctx, s.Pool, incident)
	if err != nil {
		return models.Incident{}, wrapErr("create incident", err)
	}
	return created, nil
}

// CreateIncidentUnlessDuplicate takes a transaction scoped advisory lock on
// the category and location so concurrent reports for the same spot queue up
// behind each other's duplicate check.
func (s *Store) CreateIncidentUnlessDuplicate(ctx context.Context, incident models.Incident, since time.Time) (models.Incident, error) {
	var created models.Incident
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, intakeKey(incident.Category, incident.Location)); err != nil {
			return wrapErr("lock intake", err)
		}
		dup, err := findDuplicate(ctx, tx, incident.Category, incident.Location, since)
		if err != nil {
			return err
		}
		if dup != nil {
			return fmt.Errorf("incident %s: %w", dup.ID, store.ErrDuplicate)
		}
		created, err = insertIncident(ctx, tx, incident)
		return wrapErr("create incident", err)
	})
	if err != nil {
		return models.Incident{}, err
	}
	return created, nil
}

func intakeKey(category models.Category, location string) string {
	return "incident:" + string(category) + ":" + strings.ToLower(strings.TrimSpace(location))
}

func insertIncident(ctx context.Context, q querier, incident models.Incident) (models.Incident, error) {
	now := time.Now().UTC()
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
	if incident.Status == "" {
		incident.Status = models.StatusNew
	}
	if incident.Priority == 0 {
		incident.Priority = 1
	}
	return scanIncident(q.QueryRow(ctx, `
		INSERT INTO incidents (id, user_id, title, category, description, image_url, location, latitude, longitude,
			status, priority, assigned_to, created_at, updated_at, resolved_at, sla_started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+incidentColumns,
		incident.ID, incident.UserID, incident.Title, incident.Category, incident.Description, incident.ImageURL,
		incident.Location, incident.Latitude, incident.Longitude, incident.Status, incident.Priority,
		incident.AssignedTo, incident.CreatedAt, incident.UpdatedAt, incident.ResolvedAt, incident.SLAStartedAt))
}

func (s *Store) UpdateIncident(ctx context.Context, id string, patch models.IncidentPatch) (models.Incident, error) {
	args := []any{id}
	sets := []string{"updated_at = NOW()"}
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.ClearAssignee {
		sets = append(sets, "assigned_to = NULL")
	}
	if patch.AssignedTo != nil {
		set("assigned_to", *patch.AssignedTo)
	}
	if patch.ResolvedAt != nil {
		set("resolved_at", *patch.ResolvedAt)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Latitude != nil {
		set("latitude", *patch.Latitude)
	}
	if patch.Longitude != nil {
		set("longitude", *patch.Longitude)
	}

	query := `UPDATE incidents SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	if patch.ExpectStatus != nil {
		args = append(args, *patch.ExpectStatus)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` RETURNING ` + incidentColumns

	updated, err := scanIncident(s.Pool.QueryRow(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || patch.ExpectStatus == nil {
		return models.Incident{}, wrapErr("update incident "+id, err)
	}
	current, gerr := s.GetIncident(ctx, id)
	if gerr != nil {
		return models.Incident{}, gerr
	}
	return models.Incident{}, fmt.Errorf("incident %s is %s: %w", id, current.Status, store.ErrConflict)
}

const similarLocation = `category = $1 AND lower(btrim(location)) = lower(btrim($2)) AND created_at >= $3`

func (s *Store) FindDuplicate(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error) {
	return findDuplicate(ctx, s.Pool, category, location, since)
}

func findDuplicate(ctx context.Context, q querier, category models.Category, location string, since time.Time) (*models.Incident, error) {
	i, err := scanIncident(q.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE `+similarLocation+`
		ORDER BY created_at ASC LIMIT 1`, category, location, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find duplicate", err)
	}
	return &i, nil
}

func (s *Store) FindOpenSimilar(ctx context.Context, category models.Category, location string, since time.Time) (*models.Incident, error) {
	i, err := scanIncident(s.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE `+similarLocation+` AND status IN ('new', 'in-progress')
		ORDER BY created_at DESC, id DESC LIMIT 1`, category, location, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find open similar", err)
	}
	return &i, nil
}

func (s *Store) CountSimilar(ctx context.Context, category models.Category, location string, since time.Time) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM incidents WHERE `+similarLocation, category, location, since).Scan(&n)
	if err != nil {
		return 0, wrapErr("count similar", err)
	}
	return n, nil
}
