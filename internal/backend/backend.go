// Package backend содержит единый контракт физического хранилища мапблоков
// и четыре его реализации: sqlite (встраиваемый файл), maria
// (клиент-серверная СУБД), redis (кеш в памяти) и badger (встраиваемое
// log-structured KV).
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/mtworld/internal/vec"
)

// PosResult — один элемент потока перечисления позиций.
// Непустой Err завершает поток.
type PosResult struct {
	Pos vec.Pos
	Err error
}

// Backend — непрозрачный хэндл одного физического хранилища.
//
// Хранит только сырые байты, ключованные позицией мапблока; о содержимом
// блоков бэкенд ничего не знает. Хэндл владеет своими соединениями и
// закрывается через Close.
//
// Конкурентность: методы можно звать из разных горутин (внутренние
// пулы/транзакции это допускают), но перечисление AllPositions и
// конкурентная запись в ещё не посещённую курсором позицию дают
// бэкенд-зависимый результат — запись может быть видна, а может и нет.
// Гарантий упорядочивания между одновременными операциями на одном
// хэндле нет, если её не даёт сам движок хранилища.
type Backend interface {
	// Get возвращает сырые байты блока. Второе значение false означает,
	// что по этой позиции никогда ничего не записывалось.
	Get(ctx context.Context, pos vec.Pos) ([]byte, bool, error)

	// Set записывает блок с upsert-семантикой. Атомарность замены
	// делегирована примитиву движка: читатель видит либо старое
	// значение целиком, либо новое, но не смесь.
	Set(ctx context.Context, pos vec.Pos, data []byte) error

	// Delete удаляет блок; удаление отсутствующей позиции — не ошибка.
	Delete(ctx context.Context, pos vec.Pos) error

	// AllPositions лениво перечисляет позиции всех сохранённых блоков
	// через родной курсор движка, не загружая значения. Поток конечен
	// и не перезапускаем — для повторного обхода вызов повторяется.
	// Отмена ctx гарантированно завершает горутину-продюсер
	// и освобождает курсор.
	AllPositions(ctx context.Context) <-chan PosResult

	// Close освобождает соединения и ресурсы хэндла.
	Close() error
}

// Error — ошибка бэкенда. Transient помечает сбои уровня соединения,
// которые вызывающий вправе повторить; сам пакет политику ретраев
// не навязывает.
type Error struct {
	// Backend — имя бэкенда ("sqlite", "maria", "redis", "badger").
	Backend string
	// Op — операция, на которой случился сбой.
	Op string
	// Transient — true для сбоев соединения/сети.
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "постоянная"
	if e.Transient {
		kind = "временная"
	}
	return fmt.Sprintf("бэкенд %s, операция %s: %s ошибка: %v", e.Backend, e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient сообщает, помечена ли ошибка бэкенда как временная.
func IsTransient(err error) bool {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Transient
	}
	return false
}

// emit отправляет результат в поток, уважая отмену контекста.
// Возвращает false, если потребитель отменил перечисление.
func emit(ctx context.Context, out chan<- PosResult, res PosResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
