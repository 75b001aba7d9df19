// Package mapdata — фасад над хранилищем карты: читает и пишет
// блоки в структурном виде, скрывая бинарную сериализацию и
// конкретный бэкенд.
package mapdata

import (
	"context"
	"fmt"

	"github.com/annel0/mtworld/internal/backend"
	"github.com/annel0/mtworld/internal/logging"
	"github.com/annel0/mtworld/internal/mapblock"
	"github.com/annel0/mtworld/internal/vec"
)

// MapData объединяет бэкенд и кодек блоков. Экземпляр владеет
// бэкендом: Close закрывает и кодек, и хранилище.
type MapData struct {
	backend backend.Backend
	codec   *mapblock.Codec
}

// BlockResult — элемент потока IterAllBlocks. Ровно одно из полей
// Block и Err ненулевое.
type BlockResult struct {
	Pos   vec.Pos
	Block *mapblock.MapBlock
	Err   error
}

// New создаёт фасад поверх готового бэкенда.
func New(b backend.Backend) (*MapData, error) {
	codec, err := mapblock.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("инициализация кодека: %w", err)
	}
	registerMetrics()
	return &MapData{backend: b, codec: codec}, nil
}

// ReadBlock читает и декодирует блок. Отсутствие блока — не ошибка:
// возвращается (nil, false, nil).
func (m *MapData) ReadBlock(ctx context.Context, pos vec.Pos) (*mapblock.MapBlock, bool, error) {
	data, found, err := m.backend.Get(ctx, pos)
	if err != nil {
		blockOps.WithLabelValues("read", "error").Inc()
		return nil, false, err
	}
	if !found {
		blockOps.WithLabelValues("read", "miss").Inc()
		return nil, false, nil
	}

	blk, err := m.codec.Decode(data)
	if err != nil {
		blockOps.WithLabelValues("read", "decode_error").Inc()
		return nil, false, fmt.Errorf("декодирование блока %v: %w", pos, err)
	}

	blockOps.WithLabelValues("read", "ok").Inc()
	blockBytes.WithLabelValues("read").Observe(float64(len(data)))
	return blk, true, nil
}

// WriteBlock сериализует блок и записывает его в бэкенд.
func (m *MapData) WriteBlock(ctx context.Context, pos vec.Pos, blk *mapblock.MapBlock) error {
	data, err := m.codec.Encode(blk)
	if err != nil {
		blockOps.WithLabelValues("write", "encode_error").Inc()
		return fmt.Errorf("кодирование блока %v: %w", pos, err)
	}
	if err := m.backend.Set(ctx, pos, data); err != nil {
		blockOps.WithLabelValues("write", "error").Inc()
		return err
	}

	blockOps.WithLabelValues("write", "ok").Inc()
	blockBytes.WithLabelValues("write").Observe(float64(len(data)))
	return nil
}

// DeleteBlock удаляет блок. Удаление отсутствующего блока — успех.
func (m *MapData) DeleteBlock(ctx context.Context, pos vec.Pos) error {
	if err := m.backend.Delete(ctx, pos); err != nil {
		blockOps.WithLabelValues("delete", "error").Inc()
		return err
	}
	blockOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// AllPositions перечисляет позиции всех сохранённых блоков без
// декодирования данных.
func (m *MapData) AllPositions(ctx context.Context) <-chan backend.PosResult {
	return m.backend.AllPositions(ctx)
}

// IterBlockNodes возвращает итератор по всем 4096 нодам блока
// в нативном порядке (x растёт быстрее всего, затем y, затем z).
// Позиции нод — локальные внутри блока.
func (m *MapData) IterBlockNodes(blk *mapblock.MapBlock) *mapblock.NodeIter {
	return mapblock.NewNodeIter(blk)
}

// IterAllBlocks перечисляет все блоки карты в декодированном виде.
// В строгом режиме первая же ошибка декодирования завершает поток
// элементом с Err. В мягком режиме повреждённые блоки пропускаются:
// позиция и причина уходят в лог, счётчик пропусков растёт, обход
// продолжается. Ошибки самого бэкенда завершают поток всегда.
func (m *MapData) IterAllBlocks(ctx context.Context, strict bool) <-chan BlockResult {
	out := make(chan BlockResult)
	go func() {
		defer close(out)
		for res := range m.backend.AllPositions(ctx) {
			if res.Err != nil {
				emitBlock(ctx, out, BlockResult{Err: res.Err})
				return
			}

			data, found, err := m.backend.Get(ctx, res.Pos)
			if err != nil {
				emitBlock(ctx, out, BlockResult{Pos: res.Pos, Err: err})
				return
			}
			if !found {
				// Блок удалён конкурентно между перечислением и чтением.
				continue
			}

			blk, err := m.codec.Decode(data)
			if err != nil {
				if strict {
					emitBlock(ctx, out, BlockResult{
						Pos: res.Pos,
						Err: fmt.Errorf("декодирование блока %v: %w", res.Pos, err),
					})
					return
				}
				blocksSkipped.Inc()
				logging.Warn("Пропущен повреждённый блок %v: %v", res.Pos, err)
				continue
			}

			if !emitBlock(ctx, out, BlockResult{Pos: res.Pos, Block: blk}) {
				return
			}
		}
	}()
	return out
}

// Close освобождает кодек и закрывает бэкенд.
func (m *MapData) Close() error {
	m.codec.Close()
	return m.backend.Close()
}

func emitBlock(ctx context.Context, out chan<- BlockResult, res BlockResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
