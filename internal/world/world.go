// Package world — дескриптор мира на диске: чтение world.mt,
// выбор бэкенда карты и открытие фасада mapdata.
package world

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/annel0/mtworld/internal/backend"
	"github.com/annel0/mtworld/internal/config"
	"github.com/annel0/mtworld/internal/logging"
	"github.com/annel0/mtworld/internal/mapdata"
)

// ErrUnknownBackend — в world.mt указан бэкенд, которого мы не знаем.
type ErrUnknownBackend struct {
	Backend string
}

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("неизвестный бэкенд карты %q", e.Backend)
}

// ErrBackendConfig — конфигурация бэкенда в world.mt неполна или
// противоречива.
type ErrBackendConfig struct {
	Reason string
}

func (e *ErrBackendConfig) Error() string {
	return "некорректная конфигурация бэкенда: " + e.Reason
}

// World — путь к каталогу мира. Никаких проверок при создании не
// выполняется.
type World struct {
	Path string
}

// New создаёт дескриптор мира по пути к каталогу.
func New(path string) *World {
	return &World{Path: path}
}

// Metadata читает world.mt как набор пар "ключ = значение".
// Строки без знака равенства пропускаются.
func (w *World) Metadata() (map[string]string, error) {
	f, err := os.Open(filepath.Join(w.Path, "world.mt"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("чтение world.mt: %w", err)
	}
	return meta, nil
}

// backendName определяет бэкенд карты. Отсутствие world.mt или ключа
// backend — не ошибка: исторический формат мира подразумевает sqlite3.
func (w *World) backendName() (string, map[string]string, error) {
	meta, err := w.Metadata()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Warn("world.mt не найден в %s, используется sqlite3", w.Path)
			return "sqlite3", map[string]string{}, nil
		}
		return "", nil, err
	}
	name, ok := meta["backend"]
	if !ok {
		logging.Warn("в world.mt не указан backend, используется sqlite3")
		return "sqlite3", meta, nil
	}
	return name, meta, nil
}

// OpenMapData открывает хранилище карты мира согласно world.mt и
// возвращает фасад. Фасад владеет бэкендом.
func (w *World) OpenMapData() (*mapdata.MapData, error) {
	name, meta, err := w.backendName()
	if err != nil {
		return nil, err
	}

	var b backend.Backend
	switch name {
	case "sqlite3":
		b, err = backend.NewSqliteBackend(filepath.Join(w.Path, "map.sqlite"))
	case "mysql":
		var dsn string
		dsn, err = MySQLDSN(meta["mysql_connection"])
		if err != nil {
			return nil, err
		}
		b, err = backend.NewMariaBackend(dsn, 0)
	case "redis":
		var cfg backend.RedisConfig
		cfg, err = redisConfig(meta)
		if err != nil {
			return nil, err
		}
		b, err = backend.NewRedisBackend(cfg)
	case "badger":
		b, err = backend.NewBadgerBackend(filepath.Join(w.Path, "map.db"), true)
	default:
		return nil, &ErrUnknownBackend{Backend: name}
	}
	if err != nil {
		return nil, fmt.Errorf("открытие бэкенда %s: %w", name, err)
	}

	return mapdata.New(b)
}

// OpenFromConfig открывает хранилище карты по YAML-конфигурации,
// минуя каталог мира: бэкенд и его параметры берутся из cfg
// (с env-fallback'ами секций). Пустой бэкенд означает sqlite3.
// При включённых метриках поднимается эндпоинт Prometheus.
func OpenFromConfig(cfg *config.Config) (*mapdata.MapData, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	var b backend.Backend
	var err error
	switch cfg.Backend {
	case "", "sqlite3":
		path := cfg.Sqlite.Path
		if path == "" {
			path = "map.sqlite"
		}
		b, err = backend.NewSqliteBackend(path)
	case "mysql":
		b, err = backend.NewMariaBackend(cfg.Mysql.GetDSN(), cfg.Mysql.GetMaxConns())
	case "redis":
		b, err = backend.NewRedisBackend(cfg.Redis.ToBackendConfig())
	case "badger":
		dir := cfg.Badger.Dir
		if dir == "" {
			dir = "map.db"
		}
		b, err = backend.NewBadgerBackend(dir, cfg.Badger.SyncWrites)
	default:
		return nil, &ErrUnknownBackend{Backend: cfg.Backend}
	}
	if err != nil {
		return nil, fmt.Errorf("открытие бэкенда %s: %w", cfg.Backend, err)
	}

	if cfg.Metrics.Enabled {
		mapdata.ServeMetrics(fmt.Sprintf(":%d", cfg.Metrics.GetMetricsPort()))
	}
	return mapdata.New(b)
}

// MySQLDSN собирает DSN драйвера mysql из строки подключения вида
// "host=db port=3307 user=mt password=secret dbname=map".
// Умолчания: host localhost, порт 3306. Некорректный порт — ошибка.
func MySQLDSN(kv string) (string, error) {
	params := map[string]string{
		"host": "localhost",
		"port": "3306",
	}
	for _, field := range strings.Fields(kv) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return "", &ErrBackendConfig{Reason: fmt.Sprintf("ожидалась пара ключ=значение, получено %q", field)}
		}
		params[key] = value
	}
	if _, err := strconv.ParseUint(params["port"], 10, 16); err != nil {
		return "", &ErrBackendConfig{Reason: fmt.Sprintf("некорректный порт %q", params["port"])}
	}

	var sb strings.Builder
	if user := params["user"]; user != "" {
		sb.WriteString(user)
		if pass := params["password"]; pass != "" {
			sb.WriteByte(':')
			sb.WriteString(pass)
		}
		sb.WriteByte('@')
	}
	fmt.Fprintf(&sb, "tcp(%s:%s)/%s", params["host"], params["port"], params["dbname"])
	return sb.String(), nil
}

// redisConfig извлекает параметры redis-бэкенда из world.mt.
// Обязательны redis_address и redis_hash; redis_port опционален.
func redisConfig(meta map[string]string) (backend.RedisConfig, error) {
	addr, ok := meta["redis_address"]
	if !ok {
		return backend.RedisConfig{}, &ErrBackendConfig{Reason: "бэкенд redis требует redis_address в world.mt"}
	}
	hash, ok := meta["redis_hash"]
	if !ok {
		return backend.RedisConfig{}, &ErrBackendConfig{Reason: "бэкенд redis требует redis_hash в world.mt"}
	}

	port := "6379"
	if p, ok := meta["redis_port"]; ok {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return backend.RedisConfig{}, &ErrBackendConfig{Reason: fmt.Sprintf("некорректный redis_port %q", p)}
		}
		port = p
	}

	return backend.RedisConfig{
		Addr:      addr + ":" + port,
		KeyPrefix: hash + ":",
	}, nil
}
