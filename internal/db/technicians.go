package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusfix/backend/internal/models"
	"github.com/campusfix/backend/internal/store"
)

const technicianColumns = `id, name, specialization, active, available, current_assignments, max_concurrent, updated_at`

func scanTechnician(row pgx.Row) (models.Technician, error) {
	var t models.Technician
	err := row.Scan(&t.ID, &t.Name, &t.Specialization, &t.Active, &t.Available, &t.CurrentAssignments, &t.MaxConcurrent, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+technicianColumns+` FROM technicians ORDER BY current_assignments ASC, id ASC`)
	if err != nil {
		return nil, wrapErr("list technicians", err)
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, wrapErr("list technicians", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("list technicians", rows.Err())
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	t, err := scanTechnician(s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id))
	if err != nil {
		return models.Technician{}, wrapErr("technician "+id, err)
	}
	return t, nil
}

func (s *Store) AdjustLoad(ctx context.Context, id string, delta int) (models.Technician, error) {
	return adjustLoad(ctx, s.Pool, id, delta)
}

// adjustLoad applies delta only while the counter stays within
// [0, max_concurrent]; the bound lives in the WHERE clause so concurrent
// callers cannot overshoot.
func adjustLoad(ctx context.Context, q querier, id string, delta int) (models.Technician, error) {
	t, err := scanTechnician(q.QueryRow(ctx, `
		UPDATE technicians
		SET current_assignments = current_assignments + $2, updated_at = NOW()
		WHERE id = $1 AND current_assignments + $2 BETWEEN 0 AND max_concurrent
		RETURNING `+technicianColumns, id, delta))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Technician{}, wrapErr("adjust load "+id, err)
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM technicians WHERE id = $1)`, id).Scan(&exists); err != nil {
		return models.Technician{}, wrapErr("adjust load "+id, err)
	}
	if !exists {
		return models.Technician{}, fmt.Errorf("technician %s: %w", id, store.ErrNotFound)
	}
	return models.Technician{}, fmt.Errorf("technician %s load %+d: %w", id, delta, store.ErrCapacity)
}

func (s *Store) UpsertTechnician(ctx context.Context, t models.Technician) (models.Technician, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	saved, err := scanTechnician(s.Pool.QueryRow(ctx, `
		INSERT INTO technicians (id, name, specialization, active, available, current_assignments, max_concurrent, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			active = EXCLUDED.active,
			available = EXCLUDED.available,
			max_concurrent = EXCLUDED.max_concurrent,
			updated_at = NOW()
		RETURNING `+technicianColumns,
		t.ID, t.Name, t.Specialization, t.Active, t.Available, t.MaxConcurrent))
	if err != nil {
		if isCheckViolation(err) {
			return models.Technician{}, fmt.Errorf("technician %s max_concurrent below current load: %w", t.ID, store.ErrCapacity)
		}
		return models.Technician{}, wrapErr("upsert technician", err)
	}
	return saved, nil
}
