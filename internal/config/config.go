package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/mtworld/internal/backend"
)

// Config — корневая структура конфигурации инструментов работы с картой.
type Config struct {
	Backend string        `yaml:"backend"`
	Sqlite  SqliteConfig  `yaml:"sqlite"`
	Mysql   MysqlConfig   `yaml:"mysql"`
	Redis   RedisConfig   `yaml:"redis"`
	Badger  BadgerConfig  `yaml:"badger"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type MysqlConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	PoolSize   int    `yaml:"pool_size"`
}

type BadgerConfig struct {
	Dir        string `yaml:"dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GetDSN возвращает DSN с приоритетом: config -> env.
func (m *MysqlConfig) GetDSN() string {
	return getWithEnvFallback(m.DSN, "MTWORLD_MYSQL_DSN", "")
}

// GetMaxConns возвращает размер пула соединений mysql.
func (m *MysqlConfig) GetMaxConns() int {
	return getIntWithEnvFallback(m.MaxConns, "MTWORLD_MYSQL_MAX_CONNS", 8)
}

// GetAddr возвращает адрес redis с поддержкой fallback значений.
func (r *RedisConfig) GetAddr() string {
	return getWithEnvFallback(r.Addr, "MTWORLD_REDIS_ADDR", "localhost:6379")
}

// ToBackendConfig переводит секцию в параметры redis-бэкенда.
func (r *RedisConfig) ToBackendConfig() backend.RedisConfig {
	return backend.RedisConfig{
		Addr:      r.GetAddr(),
		Password:  getWithEnvFallback(r.Password, "MTWORLD_REDIS_PASSWORD", ""),
		DB:        r.DB,
		KeyPrefix: r.KeyPrefix,
		TTL:       time.Duration(r.TTLSeconds) * time.Second,
		PoolSize:  r.PoolSize,
	}
}

// GetMetricsPort возвращает порт Prometheus с поддержкой fallback значений.
func (m *MetricsConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(m.Port, "MTWORLD_METRICS_PORT", 2112)
}

// getWithEnvFallback возвращает значение с приоритетом: config -> env -> default.
func getWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV MTWORLD_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MTWORLD_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
