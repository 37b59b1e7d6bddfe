package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// CreateAdminGrantLog добавляет запись в журнал выдачи доступа.
func (s *Storage) CreateAdminGrantLog(ctx context.Context, entry models.AdminGrantLog) (string, error) {
	const op = "storage.CreateAdminGrantLog"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID string
	query := `INSERT INTO admin_grant_logs (admin_id, admin_email, target_email, duration, created_at)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query,
		entry.AdminID, entry.AdminEmail, entry.TargetEmail, string(entry.Duration), entry.Timestamp).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListAdminGrantLogs возвращает записи журнала, новые первыми.
func (s *Storage) ListAdminGrantLogs(ctx context.Context, limit, offset int) ([]*models.AdminGrantLog, error) {
	const op = "storage.ListAdminGrantLogs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, admin_id, admin_email, target_email, duration, created_at
			  FROM admin_grant_logs
			  ORDER BY created_at DESC
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.AdminGrantLog
	for rows.Next() {
		var (
			l        models.AdminGrantLog
			duration string
		)
		if err := rows.Scan(&l.ID, &l.AdminID, &l.AdminEmail, &l.TargetEmail, &duration, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.Duration = models.GrantDuration(duration)
		result = append(result, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
