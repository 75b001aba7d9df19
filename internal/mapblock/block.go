// Package mapblock реализует бинарный кодек мапблоков — единиц хранения
// воксельного мира. Поддерживаются две эпохи формата: легаси-версии 25–28
// (секции сжаты zlib по отдельности) и современная версия 29
// (весь блок — один zstd-конверт).
package mapblock

import (
	"fmt"

	"github.com/annel0/mtworld/internal/vec"
)

// Поддерживаемые версии формата.
const (
	// VersionMin — самая старая читаемая версия легаси-эпохи.
	VersionMin = 25
	// VersionZstd — первая версия современной эпохи (zstd-конверт).
	VersionZstd = 29
	// VersionLatest — версия, в которой пишутся новые блоки по умолчанию.
	VersionLatest = 29
)

// Биты поля Flags. Позиции бит фиксированы форматом,
// менять их нельзя — сломается совместимость с существующими мирами.
const (
	FlagUnderground     uint8 = 0x01 // блок целиком под землёй
	FlagDayNightDiffers uint8 = 0x02 // освещение день/ночь различается
	FlagLightingExpired uint8 = 0x04 // освещение устарело и требует пересчёта
	FlagNotGenerated    uint8 = 0x08 // блок ещё не прошёл генерацию
)

// TimestampUndefined — значение Timestamp для блока, который ещё ни разу
// не сохранялся игрой.
const TimestampUndefined uint32 = 0xffffffff

// ContentIgnore — имя контента-заглушки незагруженного пространства.
const ContentIgnore = "ignore"

// ContentUnknown возвращается при разрешении id, отсутствующего в таблице.
const ContentUnknown = "unknown"

// Node — одна нода (воксель) в разрешённом виде.
type Node struct {
	// Content — строковый тип контента (например, "default:stone").
	Content string
	// Param1 — освещение (две упакованные тетрады).
	Param1 uint8
	// Param2 — дополнительный байт, семантика зависит от типа контента.
	Param2 uint8
}

// NodeMetadataVar — одна переменная метаданных ноды.
type NodeMetadataVar struct {
	Name    string
	Value   []byte
	Private bool // сериализуется только в meta-версии 2
}

// NodeMetadata — метаданные одной ноды: переменные плюс инвентарь.
// Инвентарь переносится как непрозрачный текст вплоть до строки-терминатора
// "EndInventory"; разбор стеков предметов — дело игровой логики.
type NodeMetadata struct {
	// Position — линейный индекс ноды внутри блока.
	Position uint16
	Vars     []NodeMetadataVar
	// Inventory — сырой текст инвентаря, включая терминатор.
	// Пустое значение кодируется как "EndInventory\n".
	Inventory []byte
}

// StaticObject — объект мира, не привязанный к сетке нод (например, LuaEntity).
type StaticObject struct {
	TypeID uint8
	// X, Y, Z — позиция с фиксированной точкой (нодовые координаты × 10000).
	X, Y, Z int32
	Data    []byte
}

// NodeTimer — запущенный таймер ноды.
type NodeTimer struct {
	// Position — линейный индекс ноды внутри блока.
	Position uint16
	// Timeout и Elapsed в миллисекундах.
	Timeout int32
	Elapsed int32
}

// MapBlock — декодированное содержимое одного мапблока.
//
// Таблица NameIDMap локальна для блока: разные блоки могут назначить
// один и тот же числовой id разным именам, поэтому таблицу нельзя
// кешировать или разделять между блоками.
type MapBlock struct {
	// Version — версия формата, из которой блок был прочитан
	// (или в которой будет записан).
	Version uint8
	Flags   uint8
	// LightingComplete — битовая маска сторон с завершённым освещением
	// (присутствует в формате начиная с версии 27).
	LightingComplete uint16
	// Timestamp — время последнего сохранения, в секундах от старта игры.
	Timestamp uint32
	// NameIDMap — локальная таблица id → имя контента.
	NameIDMap map[uint16]string

	// Param0 — id контента каждой ноды; разрешается через NameIDMap.
	// На проводе элементы занимают 1 или 2 байта (content_width),
	// в памяти всегда uint16.
	Param0 [vec.BlockVolume]uint16
	// Param1 — освещение каждой ноды.
	Param1 [vec.BlockVolume]uint8
	// Param2 — дополнительный байт каждой ноды.
	Param2 [vec.BlockVolume]uint8

	// Metadata — разреженный список: только ноды с дополнительным состоянием.
	Metadata []NodeMetadata
	// StaticObjects — объекты, не являющиеся нодами.
	StaticObjects []StaticObject
	// Timers — запущенные таймеры нод.
	Timers []NodeTimer
}

// Unloaded возвращает блок-заглушку, целиком заполненный ContentIgnore.
// Используется как отправная точка записи в ещё не существующий блок.
func Unloaded() *MapBlock {
	return &MapBlock{
		Version:   VersionLatest,
		Timestamp: TimestampUndefined,
		NameIDMap: map[uint16]string{0: ContentIgnore},
	}
}

// ContentFromID разрешает id контента в имя через локальную таблицу блока.
// Для отсутствующего id возвращается ContentUnknown.
func (b *MapBlock) ContentFromID(id uint16) string {
	if name, ok := b.NameIDMap[id]; ok {
		return name
	}
	return ContentUnknown
}

// ContentID возвращает id, назначенный имени контента в этом блоке.
func (b *MapBlock) ContentID(content string) (uint16, bool) {
	for id, name := range b.NameIDMap {
		if name == content {
			return id, true
		}
	}
	return 0, false
}

// GetOrCreateContentID возвращает id имени контента,
// при необходимости занимая первый свободный id в таблице блока.
func (b *MapBlock) GetOrCreateContentID(content string) (uint16, error) {
	if id, ok := b.ContentID(content); ok {
		return id, nil
	}
	if b.NameIDMap == nil {
		b.NameIDMap = make(map[uint16]string)
	}
	for id := 0; id <= 0xFFFF; id++ {
		if _, used := b.NameIDMap[uint16(id)]; !used {
			b.NameIDMap[uint16(id)] = content
			return uint16(id), nil
		}
	}
	return 0, fmt.Errorf("нет свободного id контента в таблице блока (%d занято)", len(b.NameIDMap))
}

// NodeAt возвращает разрешённую ноду по локальной позиции внутри блока.
func (b *MapBlock) NodeAt(local vec.Pos) Node {
	i := local.NodeIndex()
	return Node{
		Content: b.ContentFromID(b.Param0[i]),
		Param1:  b.Param1[i],
		Param2:  b.Param2[i],
	}
}

// SetContent устанавливает id контента ноды по локальной позиции.
func (b *MapBlock) SetContent(local vec.Pos, id uint16) {
	b.Param0[local.NodeIndex()] = id
}

// SetParam1 устанавливает param1 ноды по локальной позиции.
func (b *MapBlock) SetParam1(local vec.Pos, param1 uint8) {
	b.Param1[local.NodeIndex()] = param1
}

// SetParam2 устанавливает param2 ноды по локальной позиции.
func (b *MapBlock) SetParam2(local vec.Pos, param2 uint8) {
	b.Param2[local.NodeIndex()] = param2
}

// validateNameIDMap проверяет инвариант таблицы: каждый id,
// встречающийся в Param0, обязан разрешаться через NameIDMap.
func (b *MapBlock) validateNameIDMap() error {
	seen := make(map[uint16]struct{}, 8)
	for _, id := range b.Param0 {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := b.NameIDMap[id]; !ok {
			return fmt.Errorf("param0 ссылается на id %d, отсутствующий в таблице имён", id)
		}
	}
	return nil
}
