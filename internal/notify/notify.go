// Package notify fans notifications out to the configured sinks.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/campusfix/backend/internal/models"
)

type Emitter interface {
	Emit(ctx context.Context, n models.Notification) error
}

// Multi delivers to every sink and joins their errors. One failing sink does
// not stop the others.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEmitter writes notifications to the log. Used when no broker is set up.
type LogEmitter struct {
	Logger zerolog.Logger
}

func (l LogEmitter) Emit(ctx context.Context, n models.Notification) error {
	l.Logger.Info().
		Str("type", n.Type).
		Str("user_id", n.UserID).
		Str("role", n.Role).
		Interface("metadata", n.Metadata).
		Msg(n.Message)
	return nil
}
