package models

import "errors"

// Ошибки движка доступа. Правила распространения:
//   - ErrHistoryRecordFailed фатальна - операция удаления прерывается целиком,
//     удалять аккаунт без записи в журнале удалений нельзя;
//   - ErrConcurrentOperation возвращается сразу при невозможности взять
//     блокировку и трактуется вызывающим кодом как повторяемая;
//   - ErrDuplicateWebhookEvent не является ошибкой для провайдера (ему нужен
//     2xx), но фиксируется в аудите как сигнал повтора;
//   - ErrInvalidTransition логируется и трактуется как no-op.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountAlreadyExists  = errors.New("account already exists")
	ErrConcurrentOperation   = errors.New("concurrent operation in progress")
	ErrDuplicateWebhookEvent = errors.New("duplicate webhook event")
	ErrHistoryRecordFailed   = errors.New("deletion history not recorded")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrProvisioningFailed    = errors.New("external provisioning failed")
)
