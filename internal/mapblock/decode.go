package mapblock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/annel0/mtworld/internal/vec"
)

// Decode разбирает бинарное представление мапблока.
// Диспетчеризация идёт по ведущему байту версии: 29 — zstd-конверт,
// 25–28 — легаси-раскладка с отдельными zlib-секциями.
// Любое усечение, некорректный префикс длины или неизвестная версия —
// typed-ошибка DecodeError, никогда не паника.
func (c *Codec) Decode(data []byte) (*MapBlock, error) {
	if len(data) == 0 {
		return nil, decodeErr(0, "пустой буфер", nil)
	}

	version := data[0]
	switch {
	case version == VersionZstd:
		return c.decodeZstd(version, data[1:])
	case version >= VersionMin && version < VersionZstd:
		return c.decodeLegacy(version, data[1:])
	default:
		return nil, decodeErr(version, fmt.Sprintf("версия %d не поддерживается", version), nil)
	}
}

// decodeZstd разбирает блок современной эпохи: весь остаток после байта
// версии — один zstd-конверт.
func (c *Codec) decodeZstd(version uint8, envelope []byte) (*MapBlock, error) {
	payload, err := c.zstdDecompress(envelope)
	if err != nil {
		return nil, decodeErr(version, "распаковка конверта", err)
	}
	r := bytes.NewReader(payload)

	blk := &MapBlock{Version: version}

	if blk.Flags, err = readU8(r); err != nil {
		return nil, decodeErr(version, "поле flags", err)
	}
	if blk.LightingComplete, err = readU16(r); err != nil {
		return nil, decodeErr(version, "поле lighting_complete", err)
	}
	if blk.Timestamp, err = readU32(r); err != nil {
		return nil, decodeErr(version, "поле timestamp", err)
	}
	if blk.NameIDMap, err = readNameIDMap(r); err != nil {
		return nil, decodeErr(version, "таблица имён", err)
	}

	contentWidth, paramsWidth, err := readWidths(r)
	if err != nil {
		return nil, decodeErr(version, "ширины полей", err)
	}
	_ = paramsWidth

	if err := readParams(r, blk, contentWidth); err != nil {
		return nil, decodeErr(version, "массивы param0/param1/param2", err)
	}
	if blk.Metadata, err = readMetadata(r); err != nil {
		return nil, decodeErr(version, "метаданные нод", err)
	}
	if blk.StaticObjects, err = readStaticObjects(r); err != nil {
		return nil, decodeErr(version, "статические объекты", err)
	}
	if blk.Timers, err = readTimers(r); err != nil {
		return nil, decodeErr(version, "таймеры нод", err)
	}

	if err := blk.validateNameIDMap(); err != nil {
		return nil, decodeErr(version, "инвариант таблицы имён", err)
	}
	return blk, nil
}

// decodeLegacy разбирает блок легаси-эпохи (25–28): несжатый заголовок,
// две zlib-секции (данные нод и метаданные), затем объекты, timestamp,
// таблица имён и таймеры.
func (c *Codec) decodeLegacy(version uint8, rest []byte) (*MapBlock, error) {
	r := bytes.NewReader(rest)

	blk := &MapBlock{Version: version}
	var err error

	if blk.Flags, err = readU8(r); err != nil {
		return nil, decodeErr(version, "поле flags", err)
	}
	if version >= 27 {
		if blk.LightingComplete, err = readU16(r); err != nil {
			return nil, decodeErr(version, "поле lighting_complete", err)
		}
	}

	contentWidth, paramsWidth, err := readWidths(r)
	if err != nil {
		return nil, decodeErr(version, "ширины полей", err)
	}

	nodeData, err := readZlibSection(r)
	if err != nil {
		return nil, decodeErr(version, "zlib-секция данных нод", err)
	}
	want := vec.BlockVolume * (int(contentWidth) + int(paramsWidth))
	if len(nodeData) != want {
		return nil, decodeErr(version,
			fmt.Sprintf("длина данных нод %d, ожидалось %d", len(nodeData), want), nil)
	}
	if err := readParams(bytes.NewReader(nodeData), blk, contentWidth); err != nil {
		return nil, decodeErr(version, "массивы param0/param1/param2", err)
	}

	metaBlob, err := readZlibSection(r)
	if err != nil {
		return nil, decodeErr(version, "zlib-секция метаданных", err)
	}
	if blk.Metadata, err = readMetadata(bytes.NewReader(metaBlob)); err != nil {
		return nil, decodeErr(version, "метаданные нод", err)
	}

	if blk.StaticObjects, err = readStaticObjects(r); err != nil {
		return nil, decodeErr(version, "статические объекты", err)
	}
	if blk.Timestamp, err = readU32(r); err != nil {
		return nil, decodeErr(version, "поле timestamp", err)
	}
	if blk.NameIDMap, err = readNameIDMap(r); err != nil {
		return nil, decodeErr(version, "таблица имён", err)
	}
	if blk.Timers, err = readTimers(r); err != nil {
		return nil, decodeErr(version, "таймеры нод", err)
	}

	if err := blk.validateNameIDMap(); err != nil {
		return nil, decodeErr(version, "инвариант таблицы имён", err)
	}
	return blk, nil
}

// readWidths читает и проверяет content_width и params_width.
func readWidths(r *bytes.Reader) (uint8, uint8, error) {
	contentWidth, err := readU8(r)
	if err != nil {
		return 0, 0, err
	}
	if contentWidth != 1 && contentWidth != 2 {
		return 0, 0, fmt.Errorf("недопустимый content_width %d", contentWidth)
	}
	paramsWidth, err := readU8(r)
	if err != nil {
		return 0, 0, err
	}
	if paramsWidth != 2 {
		return 0, 0, fmt.Errorf("недопустимый params_width %d", paramsWidth)
	}
	return contentWidth, paramsWidth, nil
}

// readParams читает массивы param0/param1/param2 в порядке формата.
// Однобайтовый param0 расширяется до uint16 в памяти.
func readParams(r *bytes.Reader, blk *MapBlock, contentWidth uint8) error {
	if contentWidth == 2 {
		raw, err := readBytes(r, vec.BlockVolume*2)
		if err != nil {
			return err
		}
		for i := 0; i < vec.BlockVolume; i++ {
			blk.Param0[i] = binary.BigEndian.Uint16(raw[i*2:])
		}
	} else {
		raw, err := readBytes(r, vec.BlockVolume)
		if err != nil {
			return err
		}
		for i, b := range raw {
			blk.Param0[i] = uint16(b)
		}
	}

	p1, err := readBytes(r, vec.BlockVolume)
	if err != nil {
		return err
	}
	copy(blk.Param1[:], p1)

	p2, err := readBytes(r, vec.BlockVolume)
	if err != nil {
		return err
	}
	copy(blk.Param2[:], p2)
	return nil
}

// readNameIDMap читает таблицу id → имя. Повторное вхождение id — ошибка.
func readNameIDMap(r *bytes.Reader) (map[uint16]string, error) {
	ver, err := readU8(r)
	if err != nil {
		return nil, err
	}
	if ver != 0 {
		return nil, fmt.Errorf("неизвестная версия таблицы имён %d", ver)
	}

	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	mappings := make(map[uint16]string, count)
	for i := 0; i < int(count); i++ {
		id, err := readU16(r)
		if err != nil {
			return nil, err
		}
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		name, err := readBytes(r, int(nameLen))
		if err != nil {
			return nil, err
		}
		if old, dup := mappings[id]; dup {
			return nil, fmt.Errorf("id %d встречается в таблице дважды: %q и %q", id, old, string(name))
		}
		mappings[id] = string(name)
	}
	return mappings, nil
}

// readMetadata читает разреженный список метаданных нод.
func readMetadata(r *bytes.Reader) ([]NodeMetadata, error) {
	metaVer, err := readU8(r)
	if err != nil {
		return nil, err
	}
	if metaVer == 0 {
		return nil, nil
	}
	if metaVer != 1 && metaVer != 2 {
		return nil, fmt.Errorf("неизвестная версия метаданных %d", metaVer)
	}

	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	metas := make([]NodeMetadata, 0, count)
	for i := 0; i < int(count); i++ {
		var meta NodeMetadata
		if meta.Position, err = readU16(r); err != nil {
			return nil, err
		}
		if meta.Position >= vec.BlockVolume {
			return nil, fmt.Errorf("индекс ноды %d вне блока", meta.Position)
		}

		numVars, err := readU32(r)
		if err != nil {
			return nil, err
		}
		for v := uint32(0); v < numVars; v++ {
			var mv NodeMetadataVar
			nameLen, err := readU16(r)
			if err != nil {
				return nil, err
			}
			name, err := readBytes(r, int(nameLen))
			if err != nil {
				return nil, err
			}
			mv.Name = string(name)

			valLen, err := readU32(r)
			if err != nil {
				return nil, err
			}
			if mv.Value, err = readBytes(r, int(valLen)); err != nil {
				return nil, err
			}

			if metaVer >= 2 {
				private, err := readU8(r)
				if err != nil {
					return nil, err
				}
				mv.Private = private != 0
			}
			meta.Vars = append(meta.Vars, mv)
		}

		if meta.Inventory, err = readInventory(r); err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// inventoryEnd — строка-терминатор текстовой сериализации инвентаря.
const inventoryEnd = "EndInventory\n"

// readInventory потребляет текст инвентаря построчно
// вплоть до строки-терминатора включительно.
func readInventory(r *bytes.Reader) ([]byte, error) {
	var buf []byte
	lineStart := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("инвентарь без терминатора %q", inventoryEnd)
		}
		buf = append(buf, b)
		if b != '\n' {
			continue
		}
		if string(buf[lineStart:]) == inventoryEnd {
			return buf, nil
		}
		lineStart = len(buf)
	}
}

// readStaticObjects читает length-префиксованный список статических объектов.
func readStaticObjects(r *bytes.Reader) ([]StaticObject, error) {
	ver, err := readU8(r)
	if err != nil {
		return nil, err
	}
	if ver != 0 {
		return nil, fmt.Errorf("неизвестная версия статических объектов %d", ver)
	}

	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	objects := make([]StaticObject, 0, count)
	for i := 0; i < int(count); i++ {
		var obj StaticObject
		if obj.TypeID, err = readU8(r); err != nil {
			return nil, err
		}
		if obj.X, err = readS32(r); err != nil {
			return nil, err
		}
		if obj.Y, err = readS32(r); err != nil {
			return nil, err
		}
		if obj.Z, err = readS32(r); err != nil {
			return nil, err
		}
		dataLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		if obj.Data, err = readBytes(r, int(dataLen)); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// timerEntryLen — длина записи одного таймера на проводе (2+4+4).
const timerEntryLen = 10

// readTimers читает завершающий список таймеров нод.
func readTimers(r *bytes.Reader) ([]NodeTimer, error) {
	entryLen, err := readU8(r)
	if err != nil {
		return nil, err
	}
	if entryLen != timerEntryLen {
		return nil, fmt.Errorf("длина записи таймера %d, ожидалось %d", entryLen, timerEntryLen)
	}

	count, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	timers := make([]NodeTimer, 0, count)
	for i := 0; i < int(count); i++ {
		var timer NodeTimer
		if timer.Position, err = readU16(r); err != nil {
			return nil, err
		}
		if timer.Timeout, err = readS32(r); err != nil {
			return nil, err
		}
		if timer.Elapsed, err = readS32(r); err != nil {
			return nil, err
		}
		timers = append(timers, timer)
	}
	return timers, nil
}

// sortedIDs возвращает id таблицы имён в возрастающем порядке.
func sortedIDs(m map[uint16]string) []uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Примитивы чтения big-endian значений с проверкой границ буфера.

func readU8(r *bytes.Reader) (uint8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("усечённый буфер")
	}
	return b, nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	buf, err := readBytes(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	buf, err := readBytes(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func readS32(r *bytes.Reader) (int32, error) {
	u, err := readU32(r)
	return int32(u), err
}

func readBytes(r *bytes.Reader, n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, fmt.Errorf("префикс длины %d выходит за границы буфера (осталось %d)", n, r.Len())
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return nil, fmt.Errorf("усечённый буфер: %w", err)
	}
	return buf, nil
}
