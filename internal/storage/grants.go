package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// CreateAdminGrant выдаёт ограниченный по времени грант супер-администратора.
func (s *Storage) CreateAdminGrant(ctx context.Context, grant models.AdminGrant) error {
	const op = "storage.CreateAdminGrant"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO admin_grants (subject_uid, granted_by, expires_at)
			  VALUES ($1, $2, $3)`
	_, err := s.DB.ExecContext(ctx, query, grant.SubjectUID, grant.GrantedBy, grant.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindActiveAdminGrant возвращает действующий на момент now грант аккаунта
// или nil, если такого нет. Жёстко зашитых администраторов не существует:
// только записи этой таблицы дают статус super_admin.
func (s *Storage) FindActiveAdminGrant(ctx context.Context, subjectUID string, now time.Time) (*models.AdminGrant, error) {
	const op = "storage.FindActiveAdminGrant"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subject_uid, granted_by, expires_at
			  FROM admin_grants
			  WHERE subject_uid = $1 AND expires_at > $2
			  ORDER BY expires_at DESC
			  LIMIT 1`
	grant := &models.AdminGrant{}
	row := s.DB.QueryRowContext(ctx, query, subjectUID, now)
	if err := row.Scan(&grant.SubjectUID, &grant.GrantedBy, &grant.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return grant, nil
}
