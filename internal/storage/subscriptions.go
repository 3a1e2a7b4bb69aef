package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// UpsertSubscription вставляет или обновляет запись подписки по её внешнему
// идентификатору. Записи меняются только по событиям провайдера.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.SubscriptionRecord) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (subscription_id, customer_id, account_uid, status,
			      current_period_end, cancel_at_period_end, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (subscription_id) DO UPDATE
			  SET status = EXCLUDED.status,
			      current_period_end = EXCLUDED.current_period_end,
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      updated_at = EXCLUDED.updated_at`
	_, err := s.DB.ExecContext(ctx, query,
		sub.SubscriptionID, sub.CustomerID, sub.AccountUID, sub.Status,
		sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetCurrentSubscription возвращает текущую подписку аккаунта или nil, если
// подписок не было. Живая подписка (active/trialing) имеет приоритет над
// более поздней по updated_at: запоздавшее событие по старой подписке не
// должно заслонять действующую.
func (s *Storage) GetCurrentSubscription(ctx context.Context, accountUID string) (*models.SubscriptionRecord, error) {
	const op = "storage.GetCurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subscription_id, customer_id, account_uid, status,
			      current_period_end, cancel_at_period_end, updated_at
			  FROM subscriptions
			  WHERE account_uid = $1
			  ORDER BY (status IN ('active', 'trialing')) DESC, updated_at DESC
			  LIMIT 1`
	sub := &models.SubscriptionRecord{}
	row := s.DB.QueryRowContext(ctx, query, accountUID)
	if err := row.Scan(&sub.SubscriptionID, &sub.CustomerID, &sub.AccountUID, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelSubscriptionsForAccount переводит все подписки аккаунта в canceled.
// Используется при удалении аккаунта, после записи в журнал удалений.
func (s *Storage) CancelSubscriptionsForAccount(ctx context.Context, accountUID string) (int, error) {
	const op = "storage.CancelSubscriptionsForAccount"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET status = $1 WHERE account_uid = $2 AND status <> $1`
	result, err := s.DB.ExecContext(ctx, query, models.SubscriptionStatusCanceled, accountUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// HasEverSubscribed сообщает, была ли у аккаунта хоть одна подписка.
func (s *Storage) HasEverSubscribed(ctx context.Context, accountUID string) (bool, error) {
	const op = "storage.HasEverSubscribed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE account_uid = $1)`
	if err := s.DB.QueryRowContext(ctx, query, accountUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
