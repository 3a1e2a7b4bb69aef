package models

import "time"

// TrialDuration — длительность пробного периода. Окно привязано к моменту
// создания аккаунта и никогда не пересчитывается от текущего времени.
const TrialDuration = 7 * 24 * time.Hour

// Статусы пробного периода.
const (
	TrialStatusActive      = "active"
	TrialStatusExpired     = "expired"
	TrialStatusConverted   = "converted_to_paid"
	TrialStatusCanceled    = "canceled"
	TrialStatusNotEligible = "not_eligible"
)

// TrialRecord представляет пробный период аккаунта (ноль или одна запись).
// TrialEnd вычисляется один раз как TrialStart + TrialDuration.
// Отсутствие записи у аккаунта само по себе означает "пробный период не выдан".
type TrialRecord struct {
	AccountUID string    // Аккаунт-владелец
	TrialStart time.Time // Начало окна (= CreatedAt аккаунта)
	TrialEnd   time.Time // Конец окна, фиксируется при создании
	Status     string    // Один из TrialStatus*
}
