package models

import "time"

// Статусы подписки, приходящие от платёжного провайдера.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// SubscriptionRecord представляет подписку аккаунта. У аккаунта может быть
// несколько записей за всё время, но не более одной активной. Создаётся и
// обновляется только по событиям провайдера через шлюз идемпотентности,
// никогда напрямую по действию пользователя.
type SubscriptionRecord struct {
	SubscriptionID    string    // Внешний идентификатор подписки
	CustomerID        string    // Внешний идентификатор плательщика
	AccountUID        string    // Аккаунт-владелец
	Status            string    // Один из SubscriptionStatus*
	CurrentPeriodEnd  time.Time // Конец оплаченного периода
	CancelAtPeriodEnd bool      // Отмена запланирована на конец периода
	UpdatedAt         time.Time // Момент последнего применённого события
}

// SubscriptionEvent — нормализованное событие провайдера, которое транзактор
// применяет к состоянию подписки после прохождения шлюза идемпотентности.
type SubscriptionEvent struct {
	EventID           string    // Идентификатор события у провайдера
	EventType         string    // Тип события (subscription.updated и т.п.)
	SubscriptionID    string    // Внешний идентификатор подписки
	CustomerID        string    // Внешний идентификатор плательщика
	AccountUID        string    // Аккаунт из metadata события
	Status            string    // Новый статус подписки
	CurrentPeriodEnd  time.Time // Конец оплаченного периода
	CancelAtPeriodEnd bool      // Флаг отмены в конце периода
}
