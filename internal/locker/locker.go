// Package locker реализует взаимное исключение по ключу аккаунта для
// транзактора жизненного цикла. Контракт: не более одного перехода
// состояния на аккаунт одновременно; операции над разными аккаунтами
// полностью параллельны. Блокировка никогда не держится через внешний
// сетевой вызов.
package locker

import (
	"context"
	"time"
)

// Locker выдаёт эксклюзивную блокировку по ключу. Если блокировку не удалось
// получить за ограниченное время ожидания, Acquire возвращает
// models.ErrConcurrentOperation - вызывающий код трактует её как повторяемую
// и ни при каких условиях не продолжает без блокировки.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// pollInterval — шаг опроса при занятой блокировке.
const pollInterval = 25 * time.Millisecond
