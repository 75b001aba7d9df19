package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `backend: redis
redis:
  addr: "10.0.0.5:6380"
  key_prefix: "map:"
  ttl_seconds: 60
mysql:
  dsn: "u:p@tcp(db:3306)/map"
  max_conns: 4
badger:
  dir: "/var/lib/mtworld"
  sync_writes: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load вернул ошибку: %v", err)
	}
	if cfg.Backend != "redis" {
		t.Errorf("backend = %q, ожидалось redis", cfg.Backend)
	}
	if cfg.Mysql.GetDSN() != "u:p@tcp(db:3306)/map" {
		t.Errorf("неверный DSN: %q", cfg.Mysql.GetDSN())
	}
	if cfg.Mysql.GetMaxConns() != 4 {
		t.Errorf("max_conns = %d, ожидалось 4", cfg.Mysql.GetMaxConns())
	}
	if !cfg.Badger.SyncWrites {
		t.Error("sync_writes должен быть true")
	}

	rc := cfg.Redis.ToBackendConfig()
	if rc.Addr != "10.0.0.5:6380" {
		t.Errorf("redis addr = %q", rc.Addr)
	}
	if rc.TTL != 60*time.Second {
		t.Errorf("redis TTL = %v, ожидалось 60s", rc.TTL)
	}
}

func TestLoadMissingPath(t *testing.T) {
	t.Setenv("MTWORLD_CONFIG", "")
	cfg, err := Load("")
	if err != nil || cfg != nil {
		t.Fatalf("пустой путь без ENV должен давать (nil, nil), получено (%v, %v)", cfg, err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("MTWORLD_REDIS_ADDR", "env-host:6379")
	t.Setenv("MTWORLD_MYSQL_MAX_CONNS", "16")

	var r RedisConfig
	if got := r.GetAddr(); got != "env-host:6379" {
		t.Errorf("GetAddr = %q, ожидалось значение из ENV", got)
	}

	var m MysqlConfig
	if got := m.GetMaxConns(); got != 16 {
		t.Errorf("GetMaxConns = %d, ожидалось 16", got)
	}

	// Конфиг имеет приоритет над ENV.
	m.MaxConns = 2
	if got := m.GetMaxConns(); got != 2 {
		t.Errorf("GetMaxConns = %d, конфиг должен побеждать ENV", got)
	}
}

func TestMetricsPort(t *testing.T) {
	var mc MetricsConfig
	if got := mc.GetMetricsPort(); got != 2112 {
		t.Errorf("GetMetricsPort = %d, ожидался порт по умолчанию 2112", got)
	}

	t.Setenv("MTWORLD_METRICS_PORT", "9100")
	if got := mc.GetMetricsPort(); got != 9100 {
		t.Errorf("GetMetricsPort = %d, ожидалось значение из ENV", got)
	}

	mc.Port = 2113
	if got := mc.GetMetricsPort(); got != 2113 {
		t.Errorf("GetMetricsPort = %d, конфиг должен побеждать ENV", got)
	}
}
