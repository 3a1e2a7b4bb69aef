package models

import "time"

// DeletionLedgerEntry — постоянная запись журнала удалений, ключ защиты от
// повторных пробных периодов. На один identity_key существует не более одной
// записи: повторное удаление аккаунта с той же идентичностью обновляет
// DeletedAt и Reason на месте, не создавая дубликата.
type DeletionLedgerEntry struct {
	IdentityKey        string    // Канонический ключ идентичности, уникален
	OriginalAccountUID string    // Аккаунт, удалённый первым
	TrialWasUsed       bool      // Был ли использован пробный период
	EverSubscribed     bool      // Была ли когда-либо подписка
	Reason             string    // Причина удаления
	DeletedAt          time.Time // Момент последнего удаления
}
