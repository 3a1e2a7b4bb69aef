package models

// Типы доступа в порядке приоритета цепочки вычисления.
const (
	AccessTypeSuperAdmin        = "super_admin"
	AccessTypeSubscription      = "subscription"
	AccessTypeSubscriptionTrial = "subscription_trial"
	AccessTypeTrial             = "trial"
	AccessTypeExpired           = "expired"
)

// AccessDecision — производный результат вычисления доступа. Никогда не
// сохраняется: вычисляется заново на каждый запрос из неизменяемых фактов.
type AccessDecision struct {
	HasAccess             bool   `json:"has_access"`              // Есть ли доступ к продукту
	AccessType            string `json:"access_type"`             // Один из AccessType*
	TrialSecondsRemaining int64  `json:"trial_seconds_remaining"` // Остаток пробного окна, >= 0
	IsReturningUser       bool   `json:"is_returning_user"`       // Есть запись в журнале удалений
	CanProvisionExternal  bool   `json:"can_provision_external"`  // Можно ли создавать внешний аккаунт
}

// TransitionResult — типизированный результат операции транзактора.
type TransitionResult struct {
	AccountUID    string `json:"account_uid"`         // Аккаунт, к которому применена операция
	NewState      string `json:"new_state"`           // Итоговое состояние
	ReturningUser bool   `json:"returning_user"`      // Регистрация повторного пользователя
	NoOp          bool   `json:"no_op,omitempty"`     // Переход был невозможен и пропущен
	Message       string `json:"message,omitempty"`   // Человекочитаемое пояснение
}
