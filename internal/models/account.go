// Package models содержит доменные структуры движка доступа:
// аккаунты, пробные периоды, подписки, журнал удалений и результат
// вычисления доступа. Все даты хранятся в time.Time (UTC).
package models

import "time"

// Account представляет аккаунт конечного пользователя.
// Поле CreatedAt неизменяемо и является единственным источником истины
// для вычисления пробного окна. IdentityKey — производный ключ,
// пересчитывается при смене email.
type Account struct {
	UID          string    // Стабильный идентификатор, выдаётся при создании
	Email        string    // Отображаемый email, может меняться
	IdentityKey  string    // Канонический ключ идентичности (см. lib/identity)
	PasswordHash string    // bcrypt-хеш пароля
	CreatedAt    time.Time // Момент создания, якорь пробного окна
	IsDeleted    bool      // Логическая пометка удаления
}

// DummyRegisterRequest используется для приёма данных регистрации из JSON-запроса.
type DummyRegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`    // Email пользователя
	Password string `json:"password" validate:"required,min=8"` // Пароль (мин. 8 символов)
}

// DummyLoginRequest используется для приёма данных входа из JSON-запроса.
type DummyLoginRequest struct {
	Email    string `json:"email" validate:"required,email"` // Email пользователя
	Password string `json:"password" validate:"required"`    // Пароль
}

// AdminGrant — ограниченное по времени назначение прав супер-администратора.
// Проверяется через общую цепочку приоритетов вычисления доступа,
// жёстко зашитых идентификаторов администраторов нет.
type AdminGrant struct {
	SubjectUID string    // Кому выдано
	GrantedBy  string    // Кем выдано
	ExpiresAt  time.Time // Срок действия
}
