package backend

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/mtworld/internal/vec"
)

// badgerKeyPrefix отделяет блоки от возможных служебных ключей базы.
var badgerKeyPrefix = []byte("blk:")

// BadgerBackend хранит блоки во встраиваемом log-structured KV.
// Долговечность записей обеспечивает WAL самого Badger; атомарность
// замены значения — его транзакции по ключу.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend открывает (или создает) директорию базы.
// syncWrites включает fsync на каждую запись.
func NewBadgerBackend(dir string, syncWrites bool) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Отключаем логирование BadgerDB
	opts.SyncWrites = syncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &Error{Backend: "badger", Op: "open", Err: fmt.Errorf("не удалось открыть BadgerDB: %w", err)}
	}
	return &BadgerBackend{db: db}, nil
}

// key строит ключ Badger из позиции мапблока.
func badgerKey(pos vec.Pos) []byte {
	return append(append([]byte{}, badgerKeyPrefix...), pos.BytesKey()...)
}

// Get возвращает сырые байты блока по позиции.
func (b *BadgerBackend) Get(ctx context.Context, pos vec.Pos) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(pos))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "badger", Op: "get", Err: err}
	}
	return data, true, nil
}

// Set записывает блок в одной update-транзакции.
func (b *BadgerBackend) Set(ctx context.Context, pos vec.Pos, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("пустой блок не записывается (позиция %+v)", pos)
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(pos), data)
	})
	if err != nil {
		return &Error{Backend: "badger", Op: "set", Err: err}
	}
	return nil
}

// Delete удаляет блок; удаление отсутствующего ключа в Badger идемпотентно.
func (b *BadgerBackend) Delete(ctx context.Context, pos vec.Pos) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(pos))
	})
	if err != nil {
		return &Error{Backend: "badger", Op: "delete", Err: err}
	}
	return nil
}

// AllPositions перечисляет позиции родным prefix-итератором
// без подгрузки значений.
func (b *BadgerBackend) AllPositions(ctx context.Context) <-chan PosResult {
	out := make(chan PosResult)
	go func() {
		defer close(out)

		err := b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = badgerKeyPrefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				key := it.Item().Key()
				pos, err := vec.FromBytesKey(key[len(badgerKeyPrefix):])
				if err != nil {
					return fmt.Errorf("повреждённый ключ %x: %w", key, err)
				}
				if !emit(ctx, out, PosResult{Pos: pos}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			emit(ctx, out, PosResult{Err: &Error{Backend: "badger", Op: "all_positions", Err: err}})
		}
	}()
	return out
}

// Close закрывает базу.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
