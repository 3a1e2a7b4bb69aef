// Package clock абстрагирует источник текущего времени, чтобы тесты могли
// детерминированно подставлять произвольные моменты. В продакшене время
// читается один раз на вычисление и никогда не приходит от пользователя.
package clock

import "time"

// Clock возвращает текущий момент времени.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System возвращает Clock поверх системных часов (UTC).
func System() Clock { return systemClock{} }

// Fixed — Clock с фиксированным временем для тестов.
type Fixed struct {
	Time time.Time
}

// Now возвращает зафиксированный момент.
func (f Fixed) Now() time.Time { return f.Time }
