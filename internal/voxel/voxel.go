// Package voxel — понодовый доступ к миру поверх фасада mapdata.
// Все изменения накапливаются в локальном кэше блоков и попадают
// в хранилище только после явного Commit.
package voxel

import (
	"context"
	"fmt"

	"github.com/annel0/mtworld/internal/mapblock"
	"github.com/annel0/mtworld/internal/mapdata"
	"github.com/annel0/mtworld/internal/vec"
)

type cacheEntry struct {
	block   *mapblock.MapBlock
	tainted bool
}

// VoxelManip кэширует блоки карты и позволяет читать и менять
// отдельные ноды по мировым координатам. Экземпляр не потокобезопасен.
type VoxelManip struct {
	data  *mapdata.MapData
	cache map[vec.Pos]*cacheEntry
}

// New создаёт VoxelManip поверх открытого фасада. Владение фасадом
// остаётся у вызывающего.
func New(data *mapdata.MapData) *VoxelManip {
	return &VoxelManip{
		data:  data,
		cache: make(map[vec.Pos]*cacheEntry),
	}
}

func (vm *VoxelManip) entry(ctx context.Context, blockPos vec.Pos) (*cacheEntry, error) {
	if e, ok := vm.cache[blockPos]; ok {
		return e, nil
	}

	blk, found, err := vm.data.ReadBlock(ctx, blockPos)
	if err != nil {
		return nil, fmt.Errorf("загрузка блока %v: %w", blockPos, err)
	}
	if !found {
		// Отсутствующий блок материализуется как незагруженный.
		blk = mapblock.Unloaded()
	}

	e := &cacheEntry{block: blk}
	vm.cache[blockPos] = e
	return e, nil
}

func (vm *VoxelManip) modify(ctx context.Context, blockPos vec.Pos, op func(*mapblock.MapBlock) error) error {
	e, err := vm.entry(ctx, blockPos)
	if err != nil {
		return err
	}
	if err := op(e.block); err != nil {
		return err
	}
	e.tainted = true
	return nil
}

// GetBlock возвращает блок по позиции блока. Для несуществующего
// блока возвращается незагруженная заглушка.
func (vm *VoxelManip) GetBlock(ctx context.Context, blockPos vec.Pos) (*mapblock.MapBlock, error) {
	e, err := vm.entry(ctx, blockPos)
	if err != nil {
		return nil, err
	}
	return e.block, nil
}

// GetNode читает ноду по мировой позиции.
func (vm *VoxelManip) GetNode(ctx context.Context, nodePos vec.Pos) (mapblock.Node, error) {
	blockPos, local := nodePos.SplitAtBlock()
	e, err := vm.entry(ctx, blockPos)
	if err != nil {
		return mapblock.Node{}, err
	}
	return e.block.NodeAt(local), nil
}

// SetNode записывает ноду целиком: тип контента и оба параметра.
// Изменение остаётся локальным до Commit.
func (vm *VoxelManip) SetNode(ctx context.Context, nodePos vec.Pos, node mapblock.Node) error {
	blockPos, local := nodePos.SplitAtBlock()
	return vm.modify(ctx, blockPos, func(blk *mapblock.MapBlock) error {
		id, err := blk.GetOrCreateContentID(node.Content)
		if err != nil {
			return err
		}
		blk.SetContent(local, id)
		blk.SetParam1(local, node.Param1)
		blk.SetParam2(local, node.Param2)
		return nil
	})
}

// SetContent меняет тип контента ноды. content — уникальное имя вида
// "default:stone"; алиасы не разрешаются.
func (vm *VoxelManip) SetContent(ctx context.Context, nodePos vec.Pos, content string) error {
	blockPos, local := nodePos.SplitAtBlock()
	return vm.modify(ctx, blockPos, func(blk *mapblock.MapBlock) error {
		id, err := blk.GetOrCreateContentID(content)
		if err != nil {
			return err
		}
		blk.SetContent(local, id)
		return nil
	})
}

// SetParam1 меняет освещение ноды.
func (vm *VoxelManip) SetParam1(ctx context.Context, nodePos vec.Pos, param1 uint8) error {
	blockPos, local := nodePos.SplitAtBlock()
	return vm.modify(ctx, blockPos, func(blk *mapblock.MapBlock) error {
		blk.SetParam1(local, param1)
		return nil
	})
}

// SetParam2 меняет дополнительный параметр ноды.
func (vm *VoxelManip) SetParam2(ctx context.Context, nodePos vec.Pos, param2 uint8) error {
	blockPos, local := nodePos.SplitAtBlock()
	return vm.modify(ctx, blockPos, func(blk *mapblock.MapBlock) error {
		blk.SetParam2(local, param2)
		return nil
	})
}

// InCache сообщает, загружен ли блок с этой мировой позицией в кэш.
func (vm *VoxelManip) InCache(nodePos vec.Pos) bool {
	_, ok := vm.cache[nodePos.BlockAt()]
	return ok
}

// Visit гарантирует, что блок с этой мировой позицией есть в кэше.
func (vm *VoxelManip) Visit(ctx context.Context, nodePos vec.Pos) error {
	_, err := vm.entry(ctx, nodePos.BlockAt())
	return err
}

// Commit записывает все изменённые блоки в хранилище. Без него
// изменения теряются вместе с кэшем. Блоки, записанные успешно до
// первой ошибки, остаются записанными.
func (vm *VoxelManip) Commit(ctx context.Context) error {
	for pos, e := range vm.cache {
		if !e.tainted {
			continue
		}
		if err := vm.data.WriteBlock(ctx, pos, e.block); err != nil {
			return fmt.Errorf("запись блока %v: %w", pos, err)
		}
		e.tainted = false
	}
	return nil
}
