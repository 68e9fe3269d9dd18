// Package prediction fetches failure forecasts from the external scorer.
package prediction

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/campusfix/backend/internal/models"
)

type Source interface {
	Predictions(ctx context.Context, limit int) ([]models.Prediction, error)
}

// StaticSource serves a fixed list, soonest failure first.
type StaticSource struct {
	Items []models.Prediction
}

func (s StaticSource) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	out := make([]models.Prediction, len(s.Items))
	copy(out, s.Items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysToNextFailure < out[j].DaysToNextFailure
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recorder persists fetched predictions so the board survives scorer outages.
type Recorder interface {
	SavePredictions(ctx context.Context, items []models.Prediction) error
}

// Fallback asks Primary first. When it fails, Secondary answers and the
// error is logged; a successful Primary answer is handed to Record.
type Fallback struct {
	Primary   Source
	Secondary Source
	Record    Recorder
	Logger    zerolog.Logger
}

func (f Fallback) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	items, err := f.Primary.Predictions(ctx, limit)
	if err == nil {
		if f.Record != nil && len(items) > 0 {
			if rerr := f.Record.SavePredictions(ctx, items); rerr != nil {
				f.Logger.Warn().Err(rerr).Int("count", len(items)).Msg("store predictions failed")
			}
		}
		return items, nil
	}
	if f.Secondary == nil {
		return nil, err
	}
	f.Logger.Warn().Err(err).Msg("prediction scorer unavailable, using stored predictions")
	return f.Secondary.Predictions(ctx, limit)
}
