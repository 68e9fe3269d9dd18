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

const assignmentColumns = `id, incident_id, technician_id, scheduled_time, duration_minutes, status,
	completion_evidence, created_at, updated_at, completed_at`

func scanAssignment(row pgx.Row) (models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.ID, &a.IncidentID, &a.TechnicianID, &a.ScheduledTime, &a.DurationMinutes, &a.Status,
		&a.CompletionEvidence, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt)
	return a, err
}

// CreateAssignment inserts the assignment and points the incident at the
// technician in one transaction. The partial unique index on active
// assignments rejects a second one for the same incident.
func (s *Store) CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AssignmentScheduled
	}
	var created models.Assignment
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE incidents SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, a.IncidentID, a.TechnicianID)
		if err != nil {
			return wrapErr("link incident", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("incident %s: %w", a.IncidentID, store.ErrNotFound)
		}
		created, err = scanAssignment(tx.QueryRow(ctx, `
			INSERT INTO assignments (id, incident_id, technician_id, scheduled_time, duration_minutes, status, completion_evidence, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
			RETURNING `+assignmentColumns,
			a.ID, a.IncidentID, a.TechnicianID, a.ScheduledTime, a.DurationMinutes, a.Status, a.CompletionEvidence))
		if err != nil {
			return wrapErr("incident "+a.IncidentID, err)
		}
		return nil
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return created, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	a, err := scanAssignment(s.Pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if err != nil {
		return models.Assignment{}, wrapErr("assignment "+id, err)
	}
	return a, nil
}

func (s *Store) ActiveAssignment(ctx context.Context, incidentID string) (*models.Assignment, error) {
	a, err := scanAssignment(s.Pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments
		WHERE incident_id = $1 AND status <> 'completed'`, incidentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("active assignment", err)
	}
	return &a, nil
}

func (s *Store) ListAssignments(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments`
	var args []any
	var wheres []string
	if filter.TechnicianID != "" {
		args = append(args, filter.TechnicianID)
		wheres = append(wheres, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if filter.IncidentID != "" {
		args = append(args, filter.IncidentID)
		wheres = append(wheres, fmt.Sprintf("incident_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		wheres = append(wheres, "status <> 'completed'")
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY scheduled_time ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list assignments", err)
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, wrapErr("list assignments", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("list assignments", rows.Err())
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, evidence *string) (models.Assignment, error) {
	a, err := scanAssignment(s.Pool.QueryRow(ctx, `
		UPDATE assignments SET
			status = $3,
			completion_evidence = COALESCE($4, completion_evidence),
			completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+assignmentColumns, id, from, to, evidence))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Assignment{}, wrapErr("update assignment "+id, err)
	}
	current, gerr := s.GetAssignment(ctx, id)
	if gerr != nil {
		return models.Assignment{}, gerr
	}
	return models.Assignment{}, fmt.Errorf("assignment %s is %s: %w", id, current.Status, store.ErrConflict)
}

// SwapTechnician follows the reassign transaction: lock the assignment row,
// move one unit of load from the old technician to the new one and repoint
// both the assignment and its incident.
func (s *Store) SwapTechnician(ctx context.Context, assignmentID string, from, to string) (models.Assignment, error) {
	var updated models.Assignment
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			current string
			status  models.AssignmentStatus
		)
		err := tx.QueryRow(ctx, `SELECT technician_id, status FROM assignments WHERE id = $1 FOR UPDATE`, assignmentID).Scan(&current, &status)
		if err != nil {
			return wrapErr("assignment "+assignmentID, err)
		}
		if status == models.AssignmentCompleted || current != from {
			return fmt.Errorf("assignment %s: %w", assignmentID, store.ErrConflict)
		}
		if _, err := adjustLoad(ctx, tx, to, 1); err != nil {
			return err
		}
		if _, err := adjustLoad(ctx, tx, from, -1); err != nil && !errors.Is(err, store.ErrCapacity) {
			return err
		}
		updated, err = scanAssignment(tx.QueryRow(ctx, `
			UPDATE assignments SET technician_id = $2, updated_at = $3 WHERE id = $1
			RETURNING `+assignmentColumns, assignmentID, to, time.Now().UTC()))
		if err != nil {
			return wrapErr("swap technician", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE incidents SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, updated.IncidentID, to); err != nil {
			return wrapErr("repoint incident", err)
		}
		return nil
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return updated, nil
}
