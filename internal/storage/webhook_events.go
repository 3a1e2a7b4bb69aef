package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// InsertWebhookEvent атомарно регистрирует событие провайдера. Проверка и
// запись - одна операция: уникальные ограничения по event_id и по хэшу
// полезной нагрузки отсекают гонку двух одновременных доставок одного
// события. Повтор возвращает ErrDuplicateWebhookEvent.
func (s *Storage) InsertWebhookEvent(ctx context.Context, eventID, eventType, payloadHash string, receivedAt time.Time) error {
	const op = "storage.InsertWebhookEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO webhook_events (event_id, event_type, payload_hash, received_at)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query, eventID, eventType, payloadHash, receivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateWebhookEvent)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetWebhookEventFirstSeen возвращает момент первой регистрации события
// с таким event_id или хэшем полезной нагрузки.
func (s *Storage) GetWebhookEventFirstSeen(ctx context.Context, eventID, payloadHash string) (time.Time, error) {
	const op = "storage.GetWebhookEventFirstSeen"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT received_at
			  FROM webhook_events
			  WHERE event_id = $1 OR payload_hash = $2
			  ORDER BY received_at
			  LIMIT 1`
	var firstSeen time.Time
	if err := s.DB.QueryRowContext(ctx, query, eventID, payloadHash).Scan(&firstSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return firstSeen, nil
}

// DeleteWebhookEventsBefore удаляет записи событий старше cutoff.
// Провайдеры повторяют доставку в ограниченном окне, держать записи
// дольше окна удержания не нужно.
func (s *Storage) DeleteWebhookEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "storage.DeleteWebhookEventsBefore"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM webhook_events WHERE received_at < $1`
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
