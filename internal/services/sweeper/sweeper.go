// Package sweeper содержит фоновые проходы движка доступа: истечение
// пробных периодов, уведомления об истекающих окнах, чистку регистраций
// вебхуков и журнала аудита. Проходы резюмируемы: каждый переход атомарен
// и идемпотентен, прерванный посреди пакета проход корректен и
// продолжается следующим тиком.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// expiryBatchLimit ограничивает размер пакета одного прохода истечения.
const expiryBatchLimit = 500

// noticeWindow — горизонт уведомления об истекающем пробном периоде.
const noticeWindow = 24 * time.Hour

// TrialRepository определяет методы хранилища для поиска пробных периодов.
type TrialRepository interface {
	FindTrialsExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	FindTrialsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.TrialRecord, error)
}

// Transactor выполняет переходы истечения по одному аккаунту.
type Transactor interface {
	ExpireTrialsBatch(ctx context.Context, accountUIDs []string) int
}

// WebhookGate чистит устаревшие регистрации вебхуков.
type WebhookGate interface {
	Sweep(ctx context.Context) (int, error)
}

// AuditRecorder чистит журнал аудита по возрасту.
type AuditRecorder interface {
	Sweep(ctx context.Context, retention time.Duration) (int, error)
}

// Publisher публикует уведомления об истекающих пробных периодах.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Service — фоновый сервис плановых проходов.
type Service struct {
	trials      TrialRepository
	transactor  Transactor
	webhookGate WebhookGate
	audit       AuditRecorder
	publisher   Publisher
	clk         clock.Clock
	log         *slog.Logger

	expireInterval    time.Duration
	retentionInterval time.Duration
	auditRetention    time.Duration
}

// NewService создает новый экземпляр Service.
func NewService(trials TrialRepository, transactor Transactor, webhookGate WebhookGate,
	audit AuditRecorder, publisher Publisher, clk clock.Clock, log *slog.Logger,
	expireInterval, retentionInterval, auditRetention time.Duration) *Service {
	return &Service{
		trials:            trials,
		transactor:        transactor,
		webhookGate:       webhookGate,
		audit:             audit,
		publisher:         publisher,
		clk:               clk,
		log:               log,
		expireInterval:    expireInterval,
		retentionInterval: retentionInterval,
		auditRetention:    auditRetention,
	}
}

// RunExpiry гоняет проход истечения пробных периодов до отмены контекста.
func (s *Service) RunExpiry(ctx context.Context) {
	s.runExpiry(ctx)

	ticker := time.NewTicker(s.expireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runExpiry(ctx)
		}
	}
}

func (s *Service) runExpiry(ctx context.Context) {
	s.log.Info("starting expiry sweep")
	now := s.clk.Now()

	uids, err := s.trials.FindTrialsExpired(ctx, now, expiryBatchLimit)
	if err != nil {
		s.log.Error("failed to find expired trials", sl.Err(err))
		return
	}
	if len(uids) == 0 {
		s.log.Info("no expired trials found")
	} else {
		expired := s.transactor.ExpireTrialsBatch(ctx, uids)
		s.log.Info("expiry sweep finished",
			slog.Int("found", len(uids)), slog.Int("expired", expired))
	}

	s.notifyExpiring(ctx, now)
}

// notifyExpiring публикует уведомления по пробным периодам, окно которых
// закончится в пределах noticeWindow.
func (s *Service) notifyExpiring(ctx context.Context, now time.Time) {
	expiring, err := s.trials.FindTrialsExpiringBetween(ctx, now, now.Add(noticeWindow))
	if err != nil {
		s.log.Error("failed to find expiring trials", sl.Err(err))
		return
	}
	for _, trial := range expiring {
		if err := s.publisher.Publish("trial_expiring", trial); err != nil {
			s.log.Error("failed to publish trial_expiring notice",
				slog.String("account_uid", trial.AccountUID), sl.Err(err))
		}
	}
	if len(expiring) > 0 {
		s.log.Info("published trial expiry notices", slog.Int("count", len(expiring)))
	}
}

// RunRetention гоняет чистку регистраций вебхуков и журнала аудита.
func (s *Service) RunRetention(ctx context.Context) {
	s.runRetention(ctx)

	ticker := time.NewTicker(s.retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runRetention(ctx)
		}
	}
}

func (s *Service) runRetention(ctx context.Context) {
	s.log.Info("starting retention sweep")

	removedEvents, err := s.webhookGate.Sweep(ctx)
	if err != nil {
		s.log.Error("failed to sweep webhook registrations", sl.Err(err))
	}

	removedAudit, err := s.audit.Sweep(ctx, s.auditRetention)
	if err != nil {
		s.log.Error("failed to sweep audit events", sl.Err(err))
	}

	s.log.Info("retention sweep finished",
		slog.Int("webhook_events_removed", removedEvents),
		slog.Int("audit_events_removed", removedAudit))
}
