// Package lifecycle реализует транзактор жизненного цикла аккаунта:
// регистрацию, истечение пробного периода, применение событий подписки и
// удаление. Каждая операция выполняется под эксклюзивной пер-аккаунтной
// блокировкой: блокировка берётся до первого чтения состояния и держится до
// последней локальной записи. Вызовы внешнего API рабочих пространств
// выполняются после снятия блокировки: локальное состояние первично,
// внешняя система доводится best-effort.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/identity"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/sl"
	"github.com/magabrotheeeer/access-gatekeeper/internal/locker"
	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// Repository определяет методы хранилища, нужные транзактору.
type Repository interface {
	CreateAccount(ctx context.Context, acc models.Account) (string, error)
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	MarkAccountDeleted(ctx context.Context, uid string) error

	CreateTrial(ctx context.Context, trial models.TrialRecord) error
	GetTrial(ctx context.Context, accountUID string) (*models.TrialRecord, error)
	UpdateTrialStatus(ctx context.Context, accountUID, from, to string) (int, error)

	UpsertSubscription(ctx context.Context, sub models.SubscriptionRecord) error
	CancelSubscriptionsForAccount(ctx context.Context, accountUID string) (int, error)
	HasEverSubscribed(ctx context.Context, accountUID string) (bool, error)

	UpsertDeletionEntry(ctx context.Context, entry models.DeletionLedgerEntry) error
	FindDeletionEntry(ctx context.Context, identityKey string) (*models.DeletionLedgerEntry, error)
}

// Provisioner — внешний API рабочих пространств.
type Provisioner interface {
	Activate(ctx context.Context, accountUID, email string) error
	Deactivate(ctx context.Context, accountUID string) error
	Delete(ctx context.Context, accountUID string) error
}

// Auditor пишет события в журнал безопасности.
type Auditor interface {
	Record(ctx context.Context, accountUID, category, details string)
}

// Publisher публикует события жизненного цикла во внешнюю шину.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Metrics учитывает переходы и отказы блокировки.
type Metrics interface {
	RecordTransition(operation string)
	RecordLockContention()
}

// Service — транзактор жизненного цикла.
type Service struct {
	repo        Repository
	locks       locker.Locker
	provisioner Provisioner
	auditor     Auditor
	publisher   Publisher
	metrics     Metrics
	clk         clock.Clock
	log         *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, locks locker.Locker, provisioner Provisioner,
	auditor Auditor, publisher Publisher, metrics Metrics, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		locks:       locks,
		provisioner: provisioner,
		auditor:     auditor,
		publisher:   publisher,
		metrics:     metrics,
		clk:         clk,
		log:         log,
	}
}

// acquire берёт пер-аккаунтную блокировку и учитывает отказ по тайм-ауту.
func (s *Service) acquire(ctx context.Context, accountUID, operation string) (func(), error) {
	release, err := s.locks.Acquire(ctx, accountUID)
	if err != nil {
		if errors.Is(err, models.ErrConcurrentOperation) {
			s.metrics.RecordLockContention()
			s.auditor.Record(ctx, accountUID, models.AuditCategoryLockContention, operation)
		}
		return nil, err
	}
	return release, nil
}

// Signup создаёт аккаунт и, если идентичность не числится в журнале
// удалений, пробный период с окном, привязанным к моменту создания.
// Для повторного пользователя пробная запись не создаётся вовсе: её
// отсутствие и есть сигнал "без пробного периода".
func (s *Service) Signup(ctx context.Context, email, passwordHash string) (*models.TransitionResult, error) {
	const op = "lifecycle.Signup"

	identityKey := identity.Normalize(email)
	uid, err := s.repo.CreateAccount(ctx, models.Account{
		Email:        email,
		IdentityKey:  identityKey,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	release, err := s.acquire(ctx, uid, "signup")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.signupLocked(ctx, uid, identityKey)
	release()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Внешний аккаунт создаётся после локального коммита, вне блокировки.
	if !result.ReturningUser {
		if err := s.provisioner.Activate(ctx, uid, email); err != nil {
			s.log.Warn("external activation failed, will reconcile later",
				slog.String("account_uid", uid), sl.Err(err))
			s.auditor.Record(ctx, uid, models.AuditCategoryProvisioningFailure, "activate")
		}
	}

	if result.ReturningUser {
		s.metrics.RecordTransition("returning_user_signup")
	} else {
		s.metrics.RecordTransition("signup")
	}
	return result, nil
}

func (s *Service) signupLocked(ctx context.Context, uid, identityKey string) (*models.TransitionResult, error) {
	account, err := s.repo.GetAccount(ctx, uid)
	if err != nil {
		return nil, err
	}

	ledgerEntry, err := s.repo.FindDeletionEntry(ctx, identityKey)
	if err != nil {
		return nil, err
	}

	if ledgerEntry != nil {
		s.auditor.Record(ctx, uid, models.AuditCategoryReturningUserSignup,
			"identity previously deleted, trial withheld")
		return &models.TransitionResult{
			AccountUID:    uid,
			NewState:      "no_trial",
			ReturningUser: true,
			Message:       "welcome back: your trial was already used, please subscribe",
		}, nil
	}

	trial := models.TrialRecord{
		AccountUID: uid,
		TrialStart: account.CreatedAt,
		TrialEnd:   account.CreatedAt.Add(models.TrialDuration),
		Status:     models.TrialStatusActive,
	}
	if err := s.repo.CreateTrial(ctx, trial); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, uid, models.AuditCategorySignup, "trial granted")
	return &models.TransitionResult{
		AccountUID: uid,
		NewState:   "trial_active",
		Message:    "trial started",
	}, nil
}

// ExpireTrial переводит активный пробный период в expired. Переход
// идемпотентен: условное обновление статуса меняет ровно одну строку ровно
// один раз, повторный вызов (в том числе конкурентный) становится no-op.
func (s *Service) ExpireTrial(ctx context.Context, accountUID string) (*models.TransitionResult, error) {
	const op = "lifecycle.ExpireTrial"

	release, err := s.acquire(ctx, accountUID, "expire_trial")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	trial, err := s.repo.GetTrial(ctx, accountUID)
	if err != nil {
		release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if trial == nil || trial.TrialEnd.After(s.clk.Now()) {
		release()
		s.log.Info("trial not expirable, skipping",
			slog.String("account_uid", accountUID))
		return &models.TransitionResult{AccountUID: accountUID, NewState: "unchanged", NoOp: true}, nil
	}

	changed, err := s.repo.UpdateTrialStatus(ctx, accountUID,
		models.TrialStatusActive, models.TrialStatusExpired)
	release()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changed == 0 {
		// Уже переведён другим триггером: корректный no-op.
		s.log.Info("trial already transitioned", slog.String("account_uid", accountUID))
		return &models.TransitionResult{AccountUID: accountUID, NewState: "unchanged", NoOp: true}, nil
	}

	s.auditor.Record(ctx, accountUID, models.AuditCategoryTrialExpired, "")
	s.metrics.RecordTransition("expire_trial")

	if err := s.provisioner.Deactivate(ctx, accountUID); err != nil {
		s.log.Warn("external deactivation failed, will reconcile later",
			slog.String("account_uid", accountUID), sl.Err(err))
		s.auditor.Record(ctx, accountUID, models.AuditCategoryProvisioningFailure, "deactivate")
	}

	return &models.TransitionResult{AccountUID: accountUID, NewState: "trial_expired"}, nil
}

// ApplySubscriptionEvent применяет допущенное шлюзом событие провайдера.
// Активный пробный период при появлении оплаченной подписки помечается
// сконвертированным. Отмена "в конце периода" приходит как активная
// подписка с cancel_at_period_end: доступ сохраняется до конца периода,
// финальное событие canceled закрывает его.
func (s *Service) ApplySubscriptionEvent(ctx context.Context, event models.SubscriptionEvent) (*models.TransitionResult, error) {
	const op = "lifecycle.ApplySubscriptionEvent"

	if event.AccountUID == "" || event.SubscriptionID == "" {
		s.auditor.Record(ctx, event.AccountUID, models.AuditCategoryRejectedOperation,
			"subscription event without account or subscription id")
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidTransition)
	}

	release, err := s.acquire(ctx, event.AccountUID, "subscription_event")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.repo.GetAccount(ctx, event.AccountUID)
	if err != nil {
		release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := models.SubscriptionRecord{
		SubscriptionID:    event.SubscriptionID,
		CustomerID:        event.CustomerID,
		AccountUID:        event.AccountUID,
		Status:            event.Status,
		CurrentPeriodEnd:  event.CurrentPeriodEnd,
		CancelAtPeriodEnd: event.CancelAtPeriodEnd,
		UpdatedAt:         s.clk.Now(),
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if event.Status == models.SubscriptionStatusActive {
		if _, err := s.repo.UpdateTrialStatus(ctx, event.AccountUID,
			models.TrialStatusActive, models.TrialStatusConverted); err != nil {
			release()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	release()

	s.auditor.Record(ctx, event.AccountUID, models.AuditCategorySubscriptionChange,
		event.EventType+" -> "+event.Status)
	s.metrics.RecordTransition("subscription_event")

	switch event.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
		if err := s.provisioner.Activate(ctx, event.AccountUID, account.Email); err != nil {
			s.log.Warn("external activation failed, will reconcile later",
				slog.String("account_uid", event.AccountUID), sl.Err(err))
			s.auditor.Record(ctx, event.AccountUID, models.AuditCategoryProvisioningFailure, "activate")
		}
	case models.SubscriptionStatusCanceled:
		if err := s.provisioner.Deactivate(ctx, event.AccountUID); err != nil {
			s.log.Warn("external deactivation failed, will reconcile later",
				slog.String("account_uid", event.AccountUID), sl.Err(err))
			s.auditor.Record(ctx, event.AccountUID, models.AuditCategoryProvisioningFailure, "deactivate")
		}
	}

	return &models.TransitionResult{
		AccountUID: event.AccountUID,
		NewState:   "subscription_" + event.Status,
	}, nil
}

// Delete удаляет аккаунт. Первой записью под блокировкой идёт журнал
// удалений: падение после записи журнала, но до зачистки оставляет живую,
// безвредную запись аккаунта; падение в обратном порядке оставило бы
// удаляемую идентичность без следа - такой порядок запрещён структурно,
// а не повторами. Ошибка записи журнала прерывает удаление целиком.
func (s *Service) Delete(ctx context.Context, accountUID, reason string) (*models.TransitionResult, error) {
	const op = "lifecycle.Delete"

	release, err := s.acquire(ctx, accountUID, "delete")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.deleteLocked(ctx, accountUID, reason)
	release()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Внешняя зачистка идёт после локального коммита и не влияет на
	// результат: право пользователя удалить аккаунт не зависит от
	// доступности внешней системы.
	if err := s.provisioner.Deactivate(ctx, accountUID); err != nil {
		s.auditor.Record(ctx, accountUID, models.AuditCategoryProvisioningFailure, "deactivate")
	}
	if err := s.provisioner.Delete(ctx, accountUID); err != nil {
		s.log.Warn("external deletion failed, will reconcile later",
			slog.String("account_uid", accountUID), sl.Err(err))
		s.auditor.Record(ctx, accountUID, models.AuditCategoryProvisioningFailure, "delete")
	}

	if s.publisher != nil {
		if err := s.publisher.Publish("account_deleted", result); err != nil {
			s.log.Warn("failed to publish account_deleted event", sl.Err(err))
		}
	}

	s.metrics.RecordTransition("delete")
	return result, nil
}

func (s *Service) deleteLocked(ctx context.Context, accountUID, reason string) (*models.TransitionResult, error) {
	account, err := s.repo.GetAccount(ctx, accountUID)
	if err != nil {
		return nil, err
	}

	trial, err := s.repo.GetTrial(ctx, accountUID)
	if err != nil {
		return nil, err
	}
	everSubscribed, err := s.repo.HasEverSubscribed(ctx, accountUID)
	if err != nil {
		return nil, err
	}

	entry := models.DeletionLedgerEntry{
		IdentityKey:        account.IdentityKey,
		OriginalAccountUID: accountUID,
		TrialWasUsed:       trial != nil,
		EverSubscribed:     everSubscribed,
		Reason:             reason,
		DeletedAt:          s.clk.Now(),
	}
	if err := s.repo.UpsertDeletionEntry(ctx, entry); err != nil {
		// Фатально: без записи истории удаление не продолжается.
		s.auditor.Record(ctx, accountUID, models.AuditCategoryRejectedOperation,
			"deletion aborted: history not recorded")
		return nil, err
	}

	if trial != nil {
		if _, err := s.repo.UpdateTrialStatus(ctx, accountUID,
			models.TrialStatusActive, models.TrialStatusCanceled); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.CancelSubscriptionsForAccount(ctx, accountUID); err != nil {
		return nil, err
	}
	if err := s.repo.MarkAccountDeleted(ctx, accountUID); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, account.UID, models.AuditCategoryAccountDeletion, reason)
	return &models.TransitionResult{
		AccountUID: accountUID,
		NewState:   "deleted",
		Message:    "account deleted, history recorded",
	}, nil
}

// ExpireTrialsBatch прогоняет переход истечения по всем найденным аккаунтам.
// Каждый переход атомарен и независим: прерванный посреди пакета проход
// корректен и просто будет продолжен следующим тиком.
func (s *Service) ExpireTrialsBatch(ctx context.Context, accountUIDs []string) int {
	expired := 0
	for _, uid := range accountUIDs {
		result, err := s.ExpireTrial(ctx, uid)
		if err != nil {
			s.log.Error("failed to expire trial",
				slog.String("account_uid", uid), sl.Err(err))
			continue
		}
		if !result.NoOp {
			expired++
		}
	}
	return expired
}
