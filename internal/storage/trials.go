package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// CreateTrial вставляет запись пробного периода. Окно фиксируется один раз:
// trial_end задаётся вызывающим кодом как trial_start + 7 суток и далее
// никогда не пересчитывается.
func (s *Storage) CreateTrial(ctx context.Context, trial models.TrialRecord) error {
	const op = "storage.CreateTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO trials (account_uid, trial_start, trial_end, status)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query,
		trial.AccountUID, trial.TrialStart, trial.TrialEnd, trial.Status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetTrial возвращает пробный период аккаунта или nil, если записи нет.
// Отсутствие записи - не ошибка: это штатный сигнал "пробный период не выдан".
func (s *Storage) GetTrial(ctx context.Context, accountUID string) (*models.TrialRecord, error) {
	const op = "storage.GetTrial"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT account_uid, trial_start, trial_end, status
			  FROM trials
			  WHERE account_uid = $1`
	trial := &models.TrialRecord{}
	row := s.DB.QueryRowContext(ctx, query, accountUID)
	if err := row.Scan(&trial.AccountUID, &trial.TrialStart, &trial.TrialEnd, &trial.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return trial, nil
}

// UpdateTrialStatus переводит пробный период из статуса from в статус to
// и возвращает количество изменённых строк. Условие по from делает переход
// идемпотентным: повторный вызов для уже переведённой записи меняет 0 строк.
func (s *Storage) UpdateTrialStatus(ctx context.Context, accountUID, from, to string) (int, error) {
	const op = "storage.UpdateTrialStatus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE trials SET status = $1 WHERE account_uid = $2 AND status = $3`
	result, err := s.DB.ExecContext(ctx, query, to, accountUID, from)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// FindTrialsExpired возвращает UID аккаунтов с активным пробным периодом,
// окно которого уже закончилось к моменту now.
func (s *Storage) FindTrialsExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const op = "storage.FindTrialsExpired"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT account_uid
			  FROM trials
			  WHERE status = $1 AND trial_end <= $2
			  ORDER BY trial_end
			  LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, models.TrialStatusActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindTrialsExpiringBetween возвращает активные пробные периоды, окно которых
// заканчивается в интервале (from, to]. Используется для уведомлений.
func (s *Storage) FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.TrialRecord, error) {
	const op = "storage.FindTrialsExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT account_uid, trial_start, trial_end, status
			  FROM trials
			  WHERE status = $1 AND trial_end > $2 AND trial_end <= $3
			  ORDER BY trial_end`
	rows, err := s.DB.QueryContext(ctx, query, models.TrialStatusActive, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.TrialRecord
	for rows.Next() {
		var item models.TrialRecord
		if err := rows.Scan(&item.AccountUID, &item.TrialStart, &item.TrialEnd, &item.Status); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
