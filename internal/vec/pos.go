package vec

// BlockLength — длина ребра мапблока в нодах.
const BlockLength = 16

// BlockVolume — количество нод в одном мапблоке (16³).
const BlockVolume = BlockLength * BlockLength * BlockLength

// Pos представляет знаковую 3D позицию.
// В зависимости от контекста единицей является мапблок (координата блока)
// или нода (координата вокселя). Тип значения: сравнение и порядок структурные.
type Pos struct {
	X, Y, Z int16
}

// Mul умножает все оси на скаляр.
func (p Pos) Mul(s int16) Pos {
	return Pos{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Add складывает две позиции.
func (p Pos) Add(other Pos) Pos {
	return Pos{X: p.X + other.X, Y: p.Y + other.Y, Z: p.Z + other.Z}
}

// BlockAt возвращает координату мапблока, содержащего данную ноду.
// Сдвиг вправо даёт floor-деление на 16 и для отрицательных координат.
func (p Pos) BlockAt() Pos {
	return Pos{X: p.X >> 4, Y: p.Y >> 4, Z: p.Z >> 4}
}

// SplitAtBlock разбивает нодовую позицию на координату мапблока
// и локальную позицию ноды внутри него (каждая ось 0..15).
func (p Pos) SplitAtBlock() (block Pos, local Pos) {
	block = p.BlockAt()
	local = Pos{X: p.X & 0xF, Y: p.Y & 0xF, Z: p.Z & 0xF}
	return block, local
}

// NodeIndex возвращает линейный индекс локальной позиции ноды
// в плоских массивах param0/param1/param2.
// Порядок обхода фиксирован форматом: x растёт быстрее всего, затем y, затем z.
func (p Pos) NodeIndex() uint16 {
	return uint16(p.Z)<<8 | uint16(p.Y)<<4 | uint16(p.X)
}

// FromNodeIndex восстанавливает локальную позицию ноды из линейного индекса.
func FromNodeIndex(i uint16) Pos {
	return Pos{
		X: int16(i & 0xF),
		Y: int16(i >> 4 & 0xF),
		Z: int16(i >> 8 & 0xF),
	}
}
