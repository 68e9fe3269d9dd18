package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusfix/backend/internal/models"
)

func (s *Store) Emit(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var meta []byte
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode notification metadata: %w", err)
		}
		meta = b
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, role, type, message, metadata, read, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Role, n.Type, n.Message, meta, n.Read, n.CreatedAt)
	return wrapErr("insert notification", err)
}

func (s *Store) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	query := `SELECT id, user_id, role, type, message, metadata, read, created_at FROM notifications`
	var args []any
	var wheres []string
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		wheres = append(wheres, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		wheres = append(wheres, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.UnreadOnly {
		wheres = append(wheres, "NOT read")
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list notifications", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n            models.Notification
			userID, role *string
			meta         []byte
		)
		if err := rows.Scan(&n.ID, &userID, &role, &n.Type, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, wrapErr("list notifications", err)
		}
		n.UserID = derefString(userID)
		n.Role = derefString(role)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &n.Metadata)
		}
		out = append(out, n)
	}
	return out, wrapErr("list notifications", rows.Err())
}
