package mapblock

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode сериализует мапблок в бинарное представление его версии.
// Поле content_width выводится из максимального фактически встречающегося
// id (≤0xFF — один байт, иначе два), а не из ширины в памяти.
func (c *Codec) Encode(blk *MapBlock) ([]byte, error) {
	if err := blk.validateNameIDMap(); err != nil {
		return nil, fmt.Errorf("блок не сериализуем: %w", err)
	}

	switch {
	case blk.Version == VersionZstd:
		return c.encodeZstd(blk)
	case blk.Version >= VersionMin && blk.Version < VersionZstd:
		return c.encodeLegacy(blk)
	default:
		return nil, fmt.Errorf("версия %d не поддерживается для записи", blk.Version)
	}
}

// contentWidthFor выводит ширину param0 на проводе из содержимого блока.
func contentWidthFor(blk *MapBlock) uint8 {
	for _, id := range blk.Param0 {
		if id > 0xFF {
			return 2
		}
	}
	return 1
}

// encodeZstd собирает конверт современной эпохи: байт версии,
// затем единый zstd-кадр со всеми полями.
func (c *Codec) encodeZstd(blk *MapBlock) ([]byte, error) {
	var payload bytes.Buffer

	payload.WriteByte(blk.Flags)
	writeU16(&payload, blk.LightingComplete)
	writeU32(&payload, blk.Timestamp)
	writeNameIDMap(&payload, blk.NameIDMap)

	contentWidth := contentWidthFor(blk)
	payload.WriteByte(contentWidth)
	payload.WriteByte(2) // params_width
	writeParams(&payload, blk, contentWidth)

	if err := writeMetadata(&payload, blk.Metadata, metaVersionFor(blk.Version)); err != nil {
		return nil, err
	}
	writeStaticObjects(&payload, blk.StaticObjects)
	writeTimers(&payload, blk.Timers)

	out := make([]byte, 1, payload.Len()/2+1)
	out[0] = blk.Version
	return append(out, c.zstdCompress(payload.Bytes())...), nil
}

// encodeLegacy собирает блок легаси-эпохи с отдельными zlib-секциями.
func (c *Codec) encodeLegacy(blk *MapBlock) ([]byte, error) {
	var out bytes.Buffer

	out.WriteByte(blk.Version)
	out.WriteByte(blk.Flags)
	if blk.Version >= 27 {
		writeU16(&out, blk.LightingComplete)
	}

	contentWidth := contentWidthFor(blk)
	out.WriteByte(contentWidth)
	out.WriteByte(2) // params_width

	var nodeData bytes.Buffer
	writeParams(&nodeData, blk, contentWidth)
	if err := writeZlibSection(&out, nodeData.Bytes()); err != nil {
		return nil, err
	}

	var metaData bytes.Buffer
	if err := writeMetadata(&metaData, blk.Metadata, metaVersionFor(blk.Version)); err != nil {
		return nil, err
	}
	if err := writeZlibSection(&out, metaData.Bytes()); err != nil {
		return nil, err
	}

	writeStaticObjects(&out, blk.StaticObjects)
	writeU32(&out, blk.Timestamp)
	writeNameIDMap(&out, blk.NameIDMap)
	writeTimers(&out, blk.Timers)

	return out.Bytes(), nil
}

// metaVersionFor выбирает версию сериализации метаданных:
// начиная с формата 28 переменные несут флаг приватности.
func metaVersionFor(blockVersion uint8) uint8 {
	if blockVersion >= 28 {
		return 2
	}
	return 1
}

// writeParams пишет массивы param0/param1/param2 в порядке формата.
func writeParams(w *bytes.Buffer, blk *MapBlock, contentWidth uint8) {
	if contentWidth == 2 {
		for _, id := range blk.Param0 {
			writeU16(w, id)
		}
	} else {
		for _, id := range blk.Param0 {
			w.WriteByte(uint8(id))
		}
	}
	w.Write(blk.Param1[:])
	w.Write(blk.Param2[:])
}

// writeNameIDMap пишет таблицу имён в возрастающем порядке id.
func writeNameIDMap(w *bytes.Buffer, m map[uint16]string) {
	w.WriteByte(0) // версия таблицы
	writeU16(w, uint16(len(m)))
	for _, id := range sortedIDs(m) {
		writeU16(w, id)
		name := m[id]
		writeU16(w, uint16(len(name)))
		w.WriteString(name)
	}
}

// writeMetadata пишет разреженный список метаданных нод.
func writeMetadata(w *bytes.Buffer, metas []NodeMetadata, metaVer uint8) error {
	if len(metas) == 0 {
		w.WriteByte(0)
		return nil
	}

	w.WriteByte(metaVer)
	writeU16(w, uint16(len(metas)))
	for _, meta := range metas {
		writeU16(w, meta.Position)
		writeU32(w, uint32(len(meta.Vars)))
		for _, mv := range meta.Vars {
			writeU16(w, uint16(len(mv.Name)))
			w.WriteString(mv.Name)
			writeU32(w, uint32(len(mv.Value)))
			w.Write(mv.Value)
			if metaVer >= 2 {
				if mv.Private {
					w.WriteByte(1)
				} else {
					w.WriteByte(0)
				}
			} else if mv.Private {
				return fmt.Errorf("приватная переменная %q не представима в метаданных версии 1", mv.Name)
			}
		}
		if len(meta.Inventory) == 0 {
			w.WriteString(inventoryEnd)
		} else {
			w.Write(meta.Inventory)
		}
	}
	return nil
}

// writeStaticObjects пишет length-префиксованный список статических объектов.
func writeStaticObjects(w *bytes.Buffer, objects []StaticObject) {
	w.WriteByte(0) // версия списка
	writeU16(w, uint16(len(objects)))
	for _, obj := range objects {
		w.WriteByte(obj.TypeID)
		writeU32(w, uint32(obj.X))
		writeU32(w, uint32(obj.Y))
		writeU32(w, uint32(obj.Z))
		writeU16(w, uint16(len(obj.Data)))
		w.Write(obj.Data)
	}
}

// writeTimers пишет завершающий список таймеров нод.
func writeTimers(w *bytes.Buffer, timers []NodeTimer) {
	w.WriteByte(timerEntryLen)
	writeU16(w, uint16(len(timers)))
	for _, timer := range timers {
		writeU16(w, timer.Position)
		writeU32(w, uint32(timer.Timeout))
		writeU32(w, uint32(timer.Elapsed))
	}
}

// Примитивы записи big-endian значений.

func writeU16(w *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.Write(buf[:])
}

func writeU32(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}
