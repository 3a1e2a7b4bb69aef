// Package webhookgate реализует шлюз идемпотентности для событий платёжного
// провайдера. Провайдер доставляет события как минимум один раз и может
// повторять их; шлюз гарантирует, что повтор (по event_id или по идентичной
// полезной нагрузке под новым event_id) не приведёт ко второму изменению
// состояния подписки.
package webhookgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Repository определяет методы хранилища для регистрации событий.
type Repository interface {
	InsertWebhookEvent(ctx context.Context, eventID, eventType, payloadHash string, receivedAt time.Time) error
	GetWebhookEventFirstSeen(ctx context.Context, eventID, payloadHash string) (time.Time, error)
	DeleteWebhookEventsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Metrics учитывает отклонённые повторы.
type Metrics interface {
	RecordWebhookDuplicate()
}

// Auditor пишет события в журнал безопасности.
type Auditor interface {
	Record(ctx context.Context, accountUID, category, details string)
}

// Result — результат прохождения шлюза.
type Result struct {
	Admitted    bool      // Событие допущено к обработке
	DuplicateOf time.Time // Момент первой регистрации, если это повтор
}

// Gate — шлюз идемпотентности поверх таблицы webhook_events.
type Gate struct {
	repo      Repository
	metrics   Metrics
	auditor   Auditor
	clk       clock.Clock
	retention time.Duration
	log       *slog.Logger
}

// New создает новый экземпляр Gate с окном удержания retention.
func New(repo Repository, metrics Metrics, auditor Auditor, clk clock.Clock, retention time.Duration, log *slog.Logger) *Gate {
	return &Gate{
		repo:      repo,
		metrics:   metrics,
		auditor:   auditor,
		clk:       clk,
		retention: retention,
		log:       log,
	}
}

// PayloadHash возвращает SHA-256 полезной нагрузки в hex.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Admit атомарно регистрирует событие. Проверка и запись - одна вставка под
// уникальными ограничениями, отдельного чтения перед записью нет: две
// одновременные доставки одного события не могут пройти обе. Повтор
// возвращает Result с моментом первой регистрации и не является ошибкой
// для вызывающего обработчика вебхука.
func (g *Gate) Admit(ctx context.Context, eventID, eventType string, payload []byte) (*Result, error) {
	const op = "webhookgate.Admit"

	hash := PayloadHash(payload)
	err := g.repo.InsertWebhookEvent(ctx, eventID, eventType, hash, g.clk.Now())
	if err == nil {
		return &Result{Admitted: true}, nil
	}
	if !errors.Is(err, models.ErrDuplicateWebhookEvent) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	firstSeen, seenErr := g.repo.GetWebhookEventFirstSeen(ctx, eventID, hash)
	if seenErr != nil {
		g.log.Warn("failed to resolve first-seen time for duplicate event",
			slog.String("event_id", eventID))
	}
	g.metrics.RecordWebhookDuplicate()
	g.auditor.Record(ctx, "", models.AuditCategoryWebhookReplay,
		fmt.Sprintf("event %s (%s) replayed", eventID, eventType))
	g.log.Warn("rejected replayed webhook event",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Time("first_seen", firstSeen))
	return &Result{Admitted: false, DuplicateOf: firstSeen}, nil
}

// Sweep удаляет регистрации старше окна удержания. Провайдер повторяет
// доставку в ограниченном окне, бессрочно помнить события не требуется.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	const op = "webhookgate.Sweep"
	removed, err := g.repo.DeleteWebhookEventsBefore(ctx, g.clk.Now().Add(-g.retention))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return removed, nil
}
