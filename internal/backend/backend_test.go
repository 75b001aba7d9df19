package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mtworld/internal/vec"
)

// openLocalBackends открывает бэкенды, не требующие внешних серверов.
func openLocalBackends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSqliteBackend(filepath.Join(t.TempDir(), "map.sqlite"))
	require.NoError(t, err, "открытие sqlite")
	t.Cleanup(func() { sqlite.Close() })

	badgerB, err := NewBadgerBackend(filepath.Join(t.TempDir(), "map.db"), false)
	require.NoError(t, err, "открытие badger")
	t.Cleanup(func() { badgerB.Close() })

	return map[string]Backend{
		"sqlite": sqlite,
		"badger": badgerB,
	}
}

// openServerBackends добавляет maria и redis, если заданы
// MTWORLD_TEST_MARIA_DSN и MTWORLD_TEST_REDIS_ADDR.
func openServerBackends(t *testing.T, backends map[string]Backend) {
	t.Helper()

	if dsn := os.Getenv("MTWORLD_TEST_MARIA_DSN"); dsn != "" {
		maria, err := NewMariaBackend(dsn, 4)
		require.NoError(t, err, "открытие maria")
		t.Cleanup(func() { maria.Close() })
		backends["maria"] = maria
	}
	if addr := os.Getenv("MTWORLD_TEST_REDIS_ADDR"); addr != "" {
		redisB, err := NewRedisBackend(RedisConfig{Addr: addr, KeyPrefix: "mtworld:test:"})
		require.NoError(t, err, "открытие redis")
		t.Cleanup(func() { redisB.Close() })
		backends["redis"] = redisB
	}
}

// TestBackendContract прогоняет единый контракт по всем доступным бэкендам.
func TestBackendContract(t *testing.T) {
	backends := openLocalBackends(t)
	openServerBackends(t, backends)
	ctx := context.Background()

	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			pos := vec.Pos{X: -13, Y: -8, Z: 2}
			payload := []byte{29, 1, 2, 3, 4, 5}

			t.Run("Get absent", func(t *testing.T) {
				data, found, err := b.Get(ctx, vec.Pos{X: 100, Y: 100, Z: 100})
				require.NoError(t, err)
				assert.False(t, found, "absent отличим от пустого блока")
				assert.Nil(t, data)
			})

			t.Run("Set and Get", func(t *testing.T) {
				require.NoError(t, b.Set(ctx, pos, payload))
				data, found, err := b.Get(ctx, pos)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, payload, data)
			})

			t.Run("Upsert", func(t *testing.T) {
				updated := []byte{29, 9, 9, 9}
				require.NoError(t, b.Set(ctx, pos, updated))
				data, found, err := b.Get(ctx, pos)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, updated, data)
			})

			t.Run("Set rejects empty", func(t *testing.T) {
				assert.Error(t, b.Set(ctx, pos, nil), "нулевая длина — некорректный вход")
			})

			t.Run("Delete idempotent", func(t *testing.T) {
				require.NoError(t, b.Delete(ctx, pos))
				_, found, err := b.Get(ctx, pos)
				require.NoError(t, err)
				assert.False(t, found)

				// Повторное удаление отсутствующей позиции — не ошибка.
				require.NoError(t, b.Delete(ctx, pos))
				require.NoError(t, b.Delete(ctx, vec.Pos{X: 50, Y: 50, Z: 50}))
			})

			t.Run("Enumeration completeness", func(t *testing.T) {
				want := map[vec.Pos]struct{}{
					{X: 0, Y: 0, Z: 0}:    {},
					{X: -1, Y: 2, Z: -3}:  {},
					{X: 10, Y: -20, Z: 5}: {},
					{X: -13, Y: -8, Z: 2}: {},
				}
				for p := range want {
					require.NoError(t, b.Set(ctx, p, payload))
				}

				got := map[vec.Pos]int{}
				for res := range b.AllPositions(ctx) {
					require.NoError(t, res.Err)
					got[res.Pos]++
				}
				require.Len(t, got, len(want))
				for p := range want {
					assert.Equal(t, 1, got[p], "позиция %+v должна встретиться ровно один раз", p)
				}

				for p := range want {
					require.NoError(t, b.Delete(ctx, p))
				}
			})

			t.Run("Enumeration cancellation", func(t *testing.T) {
				for _, p := range []vec.Pos{{X: 1}, {X: 2}, {X: 3}, {X: 4}} {
					require.NoError(t, b.Set(ctx, p, payload))
				}

				cancelCtx, cancel := context.WithCancel(ctx)
				stream := b.AllPositions(cancelCtx)
				res, ok := <-stream
				require.True(t, ok)
				require.NoError(t, res.Err)
				cancel()

				// Продюсер обязан завершиться и закрыть канал.
				deadline := time.After(5 * time.Second)
				for {
					select {
					case _, ok := <-stream:
						if !ok {
							goto drained
						}
					case <-deadline:
						t.Fatal("поток не завершился после отмены контекста")
					}
				}
			drained:
				// Хэндл остается рабочим после отмены перечисления.
				_, _, err := b.Get(ctx, vec.Pos{X: 1})
				require.NoError(t, err)

				for _, p := range []vec.Pos{{X: 1}, {X: 2}, {X: 3}, {X: 4}} {
					require.NoError(t, b.Delete(ctx, p))
				}
			})
		})
	}
}

// TestRelationalKeyRange: координата вне домена линейного ключа —
// громкая ошибка, а не заворот.
func TestRelationalKeyRange(t *testing.T) {
	sqlite, err := NewSqliteBackend(filepath.Join(t.TempDir(), "map.sqlite"))
	require.NoError(t, err)
	defer sqlite.Close()

	ctx := context.Background()
	bad := vec.Pos{X: 3000}

	var rangeErr *vec.ErrPosOutOfRange

	_, _, err = sqlite.Get(ctx, bad)
	require.ErrorAs(t, err, &rangeErr)

	err = sqlite.Set(ctx, bad, []byte{1})
	require.ErrorAs(t, err, &rangeErr)

	err = sqlite.Delete(ctx, bad)
	require.ErrorAs(t, err, &rangeErr)
}

// TestRedisEnumerationDedup: SCAN может отдать ключ повторно при
// перестройке keyspace — повтор той же позиции не должен попасть в поток.
func TestRedisEnumerationDedup(t *testing.T) {
	seen := make(posSet)
	a := vec.Pos{X: 1, Y: 2, Z: 3}
	b := vec.Pos{X: -1, Y: 2, Z: 3}

	require.True(t, seen.add(a), "первое вхождение проходит")
	require.True(t, seen.add(b))
	assert.False(t, seen.add(a), "повтор от SCAN отбрасывается")
	assert.False(t, seen.add(b))
	require.True(t, seen.add(vec.Pos{X: 1, Y: 2, Z: 4}), "соседняя позиция — не дубликат")
}

// TestIsTransient проверяет классификацию ошибок бэкенда.
func TestIsTransient(t *testing.T) {
	transient := &Error{Backend: "maria", Op: "get", Transient: true, Err: errors.New("connection reset")}
	permanent := &Error{Backend: "sqlite", Op: "get", Err: errors.New("malformed database")}

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(permanent))
	assert.False(t, IsTransient(errors.New("прочая ошибка")))
}
