package vec

import (
	"encoding/binary"
	"fmt"
)

// Линейная схема ключей реляционных бэкендов.
// Константы должны побайтно совпадать с существующими хранилищами:
// каждая ось лежит в диапазоне [-2048, 2047], ключ считается как
// x + y·4096 + z·4096². Менять их нельзя — иначе старые миры
// перестанут читаться.
const (
	axisWidth = 4096
	axisMax   = 2047
	axisMin   = -2048
)

// ErrPosOutOfRange возвращается, когда позиция не представима
// в линейной схеме ключей активного бэкенда.
type ErrPosOutOfRange struct {
	Pos Pos
}

func (e *ErrPosOutOfRange) Error() string {
	return fmt.Sprintf("позиция %+v вне диапазона линейного ключа [%d, %d]", e.Pos, axisMin, axisMax)
}

// DatabaseKey кодирует координату мапблока в линейный знаковый индекс,
// используемый реляционными бэкендами (колонка pos).
// Координата за пределами диапазона — ошибка, а не молчаливое заворачивание.
func (p Pos) DatabaseKey() (int64, error) {
	for _, axis := range [3]int16{p.X, p.Y, p.Z} {
		if axis < axisMin || axis > axisMax {
			return 0, &ErrPosOutOfRange{Pos: p}
		}
	}
	return int64(p.X) + int64(p.Y)*axisWidth + int64(p.Z)*axisWidth*axisWidth, nil
}

// FromDatabaseKey восстанавливает координату мапблока из линейного индекса.
// Деление и модуль берутся с floor-семантикой: усечение к нулю
// ломает отрицательные оси.
func FromDatabaseKey(key int64) Pos {
	x := unsignedToSigned(floorMod(key, axisWidth))
	key = (key - int64(x)) / axisWidth
	y := unsignedToSigned(floorMod(key, axisWidth))
	key = (key - int64(y)) / axisWidth
	z := unsignedToSigned(floorMod(key, axisWidth))
	return Pos{X: x, Y: y, Z: z}
}

// floorMod — модуль с floor-семантикой: результат всегда в [0, b).
func floorMod(a, b int64) int64 {
	return (a%b + b) % b
}

// unsignedToSigned сворачивает значение из [0, 4096) в [-2048, 2048).
func unsignedToSigned(i int64) int16 {
	if i < axisMax+1 {
		return int16(i)
	}
	return int16(i - 2*(axisMax+1))
}

// BytesKeyLen — длина байтового ключа KV-бэкендов.
const BytesKeyLen = 6

// BytesKey кодирует координату мапблока в байтовый ключ KV-бэкендов:
// каждая ось — uint16 big-endian со сдвигом на 0x8000 (offset binary),
// порядок осей X, Y, Z. Побайтовый порядок ключей совпадает
// со знаковым порядком координат, поэтому range/prefix-итерация осмысленна.
func (p Pos) BytesKey() []byte {
	key := make([]byte, BytesKeyLen)
	binary.BigEndian.PutUint16(key[0:2], uint16(int32(p.X)+0x8000))
	binary.BigEndian.PutUint16(key[2:4], uint16(int32(p.Y)+0x8000))
	binary.BigEndian.PutUint16(key[4:6], uint16(int32(p.Z)+0x8000))
	return key
}

// FromBytesKey восстанавливает координату мапблока из байтового ключа.
func FromBytesKey(key []byte) (Pos, error) {
	if len(key) != BytesKeyLen {
		return Pos{}, fmt.Errorf("неверная длина байтового ключа: %d (ожидалось %d)", len(key), BytesKeyLen)
	}
	return Pos{
		X: int16(int32(binary.BigEndian.Uint16(key[0:2])) - 0x8000),
		Y: int16(int32(binary.BigEndian.Uint16(key[2:4])) - 0x8000),
		Z: int16(int32(binary.BigEndian.Uint16(key[4:6])) - 0x8000),
	}, nil
}
