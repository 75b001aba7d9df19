package mapblock

import "github.com/annel0/mtworld/internal/vec"

// NodeIter обходит все 4096 нод одного мапблока в родном порядке формата:
// x растёт быстрее всего, затем y, затем z.
// Итератор ленивый и конечный; перезапуск — создание нового итератора.
type NodeIter struct {
	blk   *MapBlock
	index int
}

// NewNodeIter создаёт итератор нод блока blk.
func NewNodeIter(blk *MapBlock) *NodeIter {
	return &NodeIter{blk: blk}
}

// Next возвращает следующую ноду вместе с её локальной позицией внутри
// блока (каждая ось ∈ [0, 16)). Мировая позиция — blockPos·16 плюс
// локальная, это остаётся на вызывающем.
// Третье значение — false, когда ноды закончились.
func (it *NodeIter) Next() (vec.Pos, Node, bool) {
	if it.index >= vec.BlockVolume {
		return vec.Pos{}, Node{}, false
	}
	i := uint16(it.index)
	it.index++

	return vec.FromNodeIndex(i), Node{
		Content: it.blk.ContentFromID(it.blk.Param0[i]),
		Param1:  it.blk.Param1[i],
		Param2:  it.blk.Param2[i],
	}, true
}
