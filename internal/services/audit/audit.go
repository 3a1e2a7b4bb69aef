// Package audit реализует журнал безопасности: только дописываемые записи
// о решениях доступа, переходах состояния и отклонённых операциях, плюс
// статическая классификация уровня угрозы. Классификация наблюдательная:
// она никогда не блокирует операции - этим занимаются транзактор и шлюз
// идемпотентности, второго источника истины авторизации быть не должно.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// threatTable — статическая таблица классификации по категории события.
var threatTable = map[string]string{
	models.AuditCategorySignup:              models.ThreatLevelLow,
	models.AuditCategoryAccessCheck:         models.ThreatLevelLow,
	models.AuditCategoryTrialExpired:        models.ThreatLevelLow,
	models.AuditCategorySubscriptionChange:  models.ThreatLevelLow,
	models.AuditCategoryAccountDeletion:     models.ThreatLevelMedium,
	models.AuditCategoryLockContention:      models.ThreatLevelMedium,
	models.AuditCategoryProvisioningFailure: models.ThreatLevelMedium,
	models.AuditCategoryWebhookApplyFailure: models.ThreatLevelMedium,
	models.AuditCategoryRejectedOperation:   models.ThreatLevelHigh,
	models.AuditCategoryReturningUserSignup: models.ThreatLevelHigh,
	models.AuditCategoryWebhookReplay:       models.ThreatLevelCritical,
}

// Classify возвращает уровень угрозы для категории события.
// Неизвестная категория считается medium.
func Classify(category string) string {
	if level, ok := threatTable[category]; ok {
		return level
	}
	return models.ThreatLevelMedium
}

// AuditRepository определяет методы хранилища для журнала аудита.
type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, event models.AuditEvent) error
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Recorder пишет события аудита в хранилище.
type Recorder struct {
	repo AuditRepository
	clk  clock.Clock
	log  *slog.Logger
}

// NewRecorder создает новый экземпляр Recorder.
func NewRecorder(repo AuditRepository, clk clock.Clock, log *slog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		clk:  clk,
		log:  log,
	}
}

// Record дописывает событие, присваивая ему идентификатор, уровень угрозы
// и момент записи. Ошибка записи аудита логируется, но не прерывает
// бизнес-операцию: журнал наблюдает, а не управляет.
func (r *Recorder) Record(ctx context.Context, accountUID, category, details string) {
	event := models.AuditEvent{
		ID:          uuid.New().String(),
		AccountUID:  accountUID,
		Category:    category,
		ThreatLevel: Classify(category),
		Details:     details,
		CreatedAt:   r.clk.Now(),
	}
	if err := r.repo.InsertAuditEvent(ctx, event); err != nil {
		r.log.Error("failed to record audit event",
			slog.String("category", category), sl.Err(err))
	}
}

// Sweep удаляет записи старше retention. Единственный путь удаления.
func (r *Recorder) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	const op = "audit.Sweep"
	removed, err := r.repo.DeleteAuditEventsBefore(ctx, r.clk.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return removed, nil
}
