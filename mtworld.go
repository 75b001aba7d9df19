// Package mtworld — чтение и запись данных карты миров Minetest:
// бинарный кодек мапблоков (легаси-версии 25–28 и современная 29),
// обе схемы ключей позиций и четыре бэкенда хранения (sqlite, mysql,
// redis, badger).
//
// Точки входа: NewWorld для каталога мира на диске, OpenFromConfig для
// YAML-конфигурации, NewMapData поверх готового бэкенда. Понодовый
// доступ с локальным кэшем даёт NewVoxelManip.
package mtworld

import (
	"github.com/annel0/mtworld/internal/backend"
	"github.com/annel0/mtworld/internal/config"
	"github.com/annel0/mtworld/internal/mapblock"
	"github.com/annel0/mtworld/internal/mapdata"
	"github.com/annel0/mtworld/internal/vec"
	"github.com/annel0/mtworld/internal/voxel"
	"github.com/annel0/mtworld/internal/world"
)

// Типы домена.
type (
	// Pos — знаковая 3D позиция (мапблока или ноды, по контексту).
	Pos = vec.Pos
	// MapBlock — декодированное содержимое одного мапблока.
	MapBlock = mapblock.MapBlock
	// Node — одна нода в разрешённом виде.
	Node = mapblock.Node
	// NodeMetadata — метаданные одной ноды.
	NodeMetadata = mapblock.NodeMetadata
	// NodeMetadataVar — одна переменная метаданных.
	NodeMetadataVar = mapblock.NodeMetadataVar
	// StaticObject — объект мира вне сетки нод.
	StaticObject = mapblock.StaticObject
	// NodeTimer — запущенный таймер ноды.
	NodeTimer = mapblock.NodeTimer
	// Codec — кодек мапблоков с долгоживущими ресурсами сжатия.
	Codec = mapblock.Codec
	// NodeIter — итератор нод блока в родном порядке формата.
	NodeIter = mapblock.NodeIter

	// Backend — контракт физического хранилища мапблоков.
	Backend = backend.Backend
	// PosResult — элемент потока перечисления позиций.
	PosResult = backend.PosResult
	// RedisConfig — настройки redis-бэкенда.
	RedisConfig = backend.RedisConfig

	// MapData — фасад над бэкендом и кодеком.
	MapData = mapdata.MapData
	// BlockResult — элемент потока IterAllBlocks.
	BlockResult = mapdata.BlockResult
	// VoxelManip — понодовый доступ с локальным кэшем блоков.
	VoxelManip = voxel.VoxelManip
	// World — дескриптор каталога мира на диске.
	World = world.World
	// Config — YAML-конфигурация бэкендов и метрик.
	Config = config.Config
	// SqliteConfig — секция Config для sqlite-бэкенда.
	SqliteConfig = config.SqliteConfig
	// MysqlConfig — секция Config для mysql-бэкенда.
	MysqlConfig = config.MysqlConfig
	// BadgerConfig — секция Config для badger-бэкенда.
	BadgerConfig = config.BadgerConfig
	// MetricsConfig — секция Config для эндпоинта Prometheus.
	MetricsConfig = config.MetricsConfig

	// DecodeError — отказ декодирования мапблока.
	DecodeError = mapblock.DecodeError
	// CompressionError — отказ примитива сжатия.
	CompressionError = mapblock.CompressionError
	// BackendError — ошибка бэкенда с флагом временности.
	BackendError = backend.Error
	// ErrPosOutOfRange — позиция вне домена линейного ключа.
	ErrPosOutOfRange = vec.ErrPosOutOfRange
	// ErrUnknownBackend — неизвестное имя бэкенда.
	ErrUnknownBackend = world.ErrUnknownBackend
	// ErrBackendConfig — неполная конфигурация бэкенда.
	ErrBackendConfig = world.ErrBackendConfig
)

// Константы формата.
const (
	// BlockLength — длина ребра мапблока в нодах.
	BlockLength = vec.BlockLength
	// BlockVolume — количество нод в одном мапблоке.
	BlockVolume = vec.BlockVolume
	// ContentIgnore — контент-заглушка незагруженного пространства.
	ContentIgnore = mapblock.ContentIgnore
	// ContentUnknown — результат разрешения отсутствующего id.
	ContentUnknown = mapblock.ContentUnknown
	// TimestampUndefined — блок ещё ни разу не сохранялся игрой.
	TimestampUndefined = mapblock.TimestampUndefined
	// VersionLatest — версия формата для новых блоков.
	VersionLatest = mapblock.VersionLatest
)

// NewWorld создаёт дескриптор мира по пути к каталогу.
// Бэкенд карты выбирается по world.mt при OpenMapData.
func NewWorld(path string) *World {
	return world.New(path)
}

// OpenFromConfig открывает хранилище карты по конфигурации,
// минуя каталог мира.
func OpenFromConfig(cfg *Config) (*MapData, error) {
	return world.OpenFromConfig(cfg)
}

// LoadConfig читает YAML файл конфигурации (пустой путь — ENV
// MTWORLD_CONFIG, иначе nil, nil).
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// NewMapData создаёт фасад поверх готового бэкенда.
func NewMapData(b Backend) (*MapData, error) {
	return mapdata.New(b)
}

// NewVoxelManip создаёт понодовый кэш поверх открытого фасада.
func NewVoxelManip(data *MapData) *VoxelManip {
	return voxel.New(data)
}

// NewCodec создаёт самостоятельный кодек мапблоков — для работы
// с сырыми байтами без фасада.
func NewCodec() (*Codec, error) {
	return mapblock.NewCodec()
}

// UnloadedBlock возвращает блок-заглушку, целиком заполненный
// ContentIgnore.
func UnloadedBlock() *MapBlock {
	return mapblock.Unloaded()
}

// NewNodeIter создаёт итератор по всем 4096 нодам блока.
func NewNodeIter(blk *MapBlock) *NodeIter {
	return mapblock.NewNodeIter(blk)
}

// OpenSqlite открывает встраиваемое однофайловое хранилище.
func OpenSqlite(path string) (Backend, error) {
	return backend.NewSqliteBackend(path)
}

// OpenMaria подключается к клиент-серверной MariaDB/MySQL.
func OpenMaria(dsn string, maxConns int) (Backend, error) {
	return backend.NewMariaBackend(dsn, maxConns)
}

// OpenRedis подключается к Redis (кеш, не долговременное хранилище).
func OpenRedis(cfg RedisConfig) (Backend, error) {
	return backend.NewRedisBackend(cfg)
}

// OpenBadger открывает встраиваемое log-structured KV.
func OpenBadger(dir string, syncWrites bool) (Backend, error) {
	return backend.NewBadgerBackend(dir, syncWrites)
}

// IsTransient сообщает, помечена ли ошибка бэкенда как временная.
func IsTransient(err error) bool {
	return backend.IsTransient(err)
}
