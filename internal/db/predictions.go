package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusfix/backend/internal/models"
)

func (s *Store) SavePredictions(ctx context.Context, items []models.Prediction) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(items))
	for _, p := range items {
		rows = append(rows, []any{p.Location, string(p.Category), p.DaysToNextFailure, p.Confidence, p.Message, now})
	}
	_, err := s.Pool.CopyFrom(ctx, pgx.Identifier{"predictions"},
		[]string{"location", "category", "days_to_next_failure", "confidence", "message", "created_at"},
		pgx.CopyFromRows(rows))
	return wrapErr("save predictions", err)
}

// Predictions returns the newest forecast per location and category,
// soonest failure first.
func (s *Store) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT location, category, days_to_next_failure, confidence, message FROM (
			SELECT DISTINCT ON (location, category) location, category, days_to_next_failure, confidence, message
			FROM predictions
			ORDER BY location, category, created_at DESC
		) latest
		ORDER BY days_to_next_failure ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("list predictions", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.Location, &p.Category, &p.DaysToNextFailure, &p.Confidence, &p.Message); err != nil {
			return nil, wrapErr("list predictions", err)
		}
		out = append(out, p)
	}
	return out, wrapErr("list predictions", rows.Err())
}
