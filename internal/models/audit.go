package models

import "time"

// Уровни угрозы для классификации событий аудита.
const (
	ThreatLevelLow      = "low"
	ThreatLevelMedium   = "medium"
	ThreatLevelHigh     = "high"
	ThreatLevelCritical = "critical"
)

// Категории событий аудита.
const (
	AuditCategorySignup              = "signup"
	AuditCategoryReturningUserSignup = "returning_user_signup"
	AuditCategoryAccessCheck         = "access_check"
	AuditCategoryTrialExpired        = "trial_expired"
	AuditCategorySubscriptionChange  = "subscription_change"
	AuditCategoryAccountDeletion     = "account_deletion"
	AuditCategoryWebhookReplay       = "webhook_replay"
	AuditCategoryWebhookApplyFailure = "webhook_apply_failure"
	AuditCategoryLockContention      = "lock_contention"
	AuditCategoryRejectedOperation   = "rejected_operation"
	AuditCategoryProvisioningFailure = "provisioning_failure"
)

// AuditEvent — запись журнала аудита. Журнал только дописывается, записи
// не изменяются и не удаляются, кроме как периодической чисткой по возрасту.
type AuditEvent struct {
	ID          string    // Идентификатор записи
	AccountUID  string    // Связанный аккаунт, может быть пустым
	Category    string    // Одна из AuditCategory*
	ThreatLevel string    // Один из ThreatLevel*, присваивается классификатором
	Details     string    // Произвольное пояснение
	CreatedAt   time.Time // Момент записи
}
