package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// InsertAuditEvent дописывает запись в журнал аудита.
func (s *Storage) InsertAuditEvent(ctx context.Context, event models.AuditEvent) error {
	const op = "storage.InsertAuditEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO audit_events (id, account_uid, category, threat_level, details, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.DB.ExecContext(ctx, query,
		event.ID, event.AccountUID, event.Category, event.ThreatLevel, event.Details, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListAuditEvents возвращает последние записи аудита для аккаунта.
func (s *Storage) ListAuditEvents(ctx context.Context, accountUID string, limit int) ([]*models.AuditEvent, error) {
	const op = "storage.ListAuditEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_uid, category, threat_level, details, created_at
			  FROM audit_events
			  WHERE account_uid = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, accountUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.AuditEvent
	for rows.Next() {
		var item models.AuditEvent
		if err := rows.Scan(&item.ID, &item.AccountUID, &item.Category,
			&item.ThreatLevel, &item.Details, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteAuditEventsBefore удаляет записи аудита старше cutoff.
// Единственный разрешённый способ удаления из журнала.
func (s *Storage) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "storage.DeleteAuditEventsBefore"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM audit_events WHERE created_at < $1`
	result, err := s.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
