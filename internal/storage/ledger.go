package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// UpsertDeletionEntry записывает удаление в журнал. На один identity_key
// существует не более одной строки: конфликт по ключу обновляет deleted_at
// и причину на месте. Ошибка записи обязана прерывать удаление аккаунта
// целиком, поэтому наружу она поднимается как ErrHistoryRecordFailed.
func (s *Storage) UpsertDeletionEntry(ctx context.Context, entry models.DeletionLedgerEntry) error {
	const op = "storage.UpsertDeletionEntry"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, models.ErrHistoryRecordFailed, ctx.Err())
	default:
	}

	query := `INSERT INTO deletion_ledger (identity_key, original_account_uid, trial_was_used,
			      ever_subscribed, reason, deleted_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (identity_key) DO UPDATE
			  SET reason = EXCLUDED.reason,
			      deleted_at = EXCLUDED.deleted_at,
			      trial_was_used = deletion_ledger.trial_was_used OR EXCLUDED.trial_was_used,
			      ever_subscribed = deletion_ledger.ever_subscribed OR EXCLUDED.ever_subscribed`
	_, err := s.DB.ExecContext(ctx, query,
		entry.IdentityKey, entry.OriginalAccountUID, entry.TrialWasUsed,
		entry.EverSubscribed, entry.Reason, entry.DeletedAt)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrHistoryRecordFailed, err)
	}
	return nil
}

// FindDeletionEntry возвращает запись журнала удалений по ключу идентичности
// или nil, если идентичность никогда не удалялась.
func (s *Storage) FindDeletionEntry(ctx context.Context, identityKey string) (*models.DeletionLedgerEntry, error) {
	const op = "storage.FindDeletionEntry"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT identity_key, original_account_uid, trial_was_used,
			      ever_subscribed, reason, deleted_at
			  FROM deletion_ledger
			  WHERE identity_key = $1`
	entry := &models.DeletionLedgerEntry{}
	row := s.DB.QueryRowContext(ctx, query, identityKey)
	if err := row.Scan(&entry.IdentityKey, &entry.OriginalAccountUID, &entry.TrialWasUsed,
		&entry.EverSubscribed, &entry.Reason, &entry.DeletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entry, nil
}
