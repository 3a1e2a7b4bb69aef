package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// CreateAccount сохраняет новый аккаунт и возвращает его UID.
// Момент создания фиксируется базой и далее не изменяется.
func (s *Storage) CreateAccount(ctx context.Context, acc models.Account) (string, error) {
	const op = "storage.CreateAccount"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (email, identity_key, password_hash)
			  VALUES ($1, $2, $3)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		acc.Email, acc.IdentityKey, acc.PasswordHash).Scan(&newUID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%s: %w", op, models.ErrAccountAlreadyExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetAccount возвращает аккаунт по его UID.
func (s *Storage) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	const op = "storage.GetAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, identity_key, password_hash, created_at, is_deleted
			  FROM accounts
			  WHERE uid = $1`
	acc := &models.Account{}
	row := s.DB.QueryRowContext(ctx, query, uid)
	if err := row.Scan(&acc.UID, &acc.Email, &acc.IdentityKey, &acc.PasswordHash,
		&acc.CreatedAt, &acc.IsDeleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetAccountByEmail возвращает неудалённый аккаунт по его email.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccountByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, identity_key, password_hash, created_at, is_deleted
			  FROM accounts
			  WHERE email = $1 AND is_deleted = FALSE`
	acc := &models.Account{}
	row := s.DB.QueryRowContext(ctx, query, email)
	if err := row.Scan(&acc.UID, &acc.Email, &acc.IdentityKey, &acc.PasswordHash,
		&acc.CreatedAt, &acc.IsDeleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// UpdateAccountEmail меняет email аккаунта и пересчитанный identity_key.
func (s *Storage) UpdateAccountEmail(ctx context.Context, uid, email, identityKey string) error {
	const op = "storage.UpdateAccountEmail"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts SET email = $1, identity_key = $2 WHERE uid = $3`
	result, err := s.DB.ExecContext(ctx, query, email, identityKey, uid)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrAccountAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}

// MarkAccountDeleted логически помечает аккаунт удалённым. История
// (created_at, identity_key) сохраняется, физического стирания нет.
func (s *Storage) MarkAccountDeleted(ctx context.Context, uid string) error {
	const op = "storage.MarkAccountDeleted"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts SET is_deleted = TRUE WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}
