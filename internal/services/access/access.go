package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Repository определяет методы хранилища для вычисления доступа.
type Repository interface {
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	GetCurrentSubscription(ctx context.Context, accountUID string) (*models.SubscriptionRecord, error)
	FindDeletionEntry(ctx context.Context, identityKey string) (*models.DeletionLedgerEntry, error)
	FindActiveAdminGrant(ctx context.Context, subjectUID string, now time.Time) (*models.AdminGrant, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Metrics учитывает вычисленные решения.
type Metrics interface {
	RecordAccessDecision(accessType string)
}

// Service отвечает на запрос "есть ли доступ" для аккаунта. Вызов дешёвый
// (только чтения локального хранилища), без внешних сетевых вызовов и без
// побочных изменений состояния.
type Service struct {
	repo    Repository
	cache   Cache
	metrics Metrics
	clk     clock.Clock
	log     *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, cache Cache, metrics Metrics, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		clk:     clk,
		log:     log,
	}
}

// GetAccess вычисляет текущее решение о доступе для аккаунта.
// Кешируются только попадания в журнал удалений: запись там постоянна,
// поэтому закешированный хит не может устареть; промахи не кешируются,
// чтобы свежее удаление было видно сразу.
func (s *Service) GetAccess(ctx context.Context, accountUID string) (*models.AccessDecision, error) {
	const op = "access.GetAccess"

	account, err := s.repo.GetAccount(ctx, accountUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := s.repo.GetCurrentSubscription(ctx, accountUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ledgerEntry, err := s.lookupLedger(ctx, account.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clk.Now()
	grant, err := s.repo.FindActiveAdminGrant(ctx, accountUID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	decision := Evaluate(account, sub, ledgerEntry, grant, now)
	s.metrics.RecordAccessDecision(decision.AccessType)
	return &decision, nil
}

func (s *Service) lookupLedger(ctx context.Context, identityKey string) (*models.DeletionLedgerEntry, error) {
	cacheKey := "ledger:" + identityKey

	var cached models.DeletionLedgerEntry
	found, err := s.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read ledger cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	entry, err := s.repo.FindDeletionEntry(ctx, identityKey)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if err := s.cache.Set(ctx, cacheKey, entry, time.Hour); err != nil {
			s.log.Warn("failed to cache ledger entry", slog.String("key", cacheKey), sl.Err(err))
		}
	}
	return entry, nil
}
