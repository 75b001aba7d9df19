package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mtworld/internal/vec"
)

// RedisConfig — настройки redis-бэкенда.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// KeyPrefix — текстовый префикс ключей (например, "mtworld:map:").
	// Не должен содержать метасимволы glob: по нему строится MATCH-шаблон SCAN.
	KeyPrefix string `yaml:"key_prefix"`
	// TTL — срок жизни блока; 0 — без истечения. Политика задается
	// вызывающим, сам бэкенд вытеснение не навязывает.
	TTL      time.Duration `yaml:"ttl"`
	PoolSize int           `yaml:"pool_size"`
}

// RedisBackend хранит блоки в Redis: ключ — префикс плюс байтовый ключ
// позиции, значение — сжатый конверт блока как есть.
//
// Это кеш в памяти, а НЕ долговременный источник истины: данные живут
// в пределах TTL и устойчивости самого Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend подключается к Redis и проверяет соединение.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mtworld:map:"
	}
	if strings.ContainsAny(cfg.KeyPrefix, `*?[\`) {
		return nil, fmt.Errorf("префикс ключей %q содержит метасимволы glob", cfg.KeyPrefix)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, &Error{Backend: "redis", Op: "ping", Transient: true, Err: err}
	}

	return &RedisBackend{client: rdb, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// key строит ключ Redis из позиции мапблока.
func (r *RedisBackend) key(pos vec.Pos) string {
	return r.prefix + string(pos.BytesKey())
}

// Get возвращает сырые байты блока по позиции.
func (r *RedisBackend) Get(ctx context.Context, pos vec.Pos) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(pos)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "redis", Op: "get", Transient: true, Err: err}
	}
	return data, true, nil
}

// Set записывает блок; SET в Redis атомарен по ключу.
func (r *RedisBackend) Set(ctx context.Context, pos vec.Pos, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("пустой блок не записывается (позиция %+v)", pos)
	}
	if err := r.client.Set(ctx, r.key(pos), data, r.ttl).Err(); err != nil {
		return &Error{Backend: "redis", Op: "set", Transient: true, Err: err}
	}
	return nil
}

// Delete удаляет блок; DEL отсутствующего ключа — не ошибка.
func (r *RedisBackend) Delete(ctx context.Context, pos vec.Pos) error {
	if err := r.client.Del(ctx, r.key(pos)).Err(); err != nil {
		return &Error{Backend: "redis", Op: "delete", Transient: true, Err: err}
	}
	return nil
}

// posSet отмечает уже отданные позиции. SCAN гарантирует лишь
// at-least-once: при перестройке keyspace ключ может прийти повторно,
// поэтому дубликаты фильтруются на нашей стороне.
type posSet map[vec.Pos]struct{}

// add возвращает false, если позиция уже отдавалась.
func (s posSet) add(pos vec.Pos) bool {
	if _, dup := s[pos]; dup {
		return false
	}
	s[pos] = struct{}{}
	return true
}

// AllPositions перечисляет позиции курсором SCAN с MATCH по префиксу;
// значения при этом не читаются. Каждая позиция отдаётся ровно один раз.
func (r *RedisBackend) AllPositions(ctx context.Context) <-chan PosResult {
	out := make(chan PosResult)
	go func() {
		defer close(out)

		seen := make(posSet)
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 256).Result()
			if err != nil {
				emit(ctx, out, PosResult{Err: &Error{Backend: "redis", Op: "all_positions", Transient: true, Err: err}})
				return
			}
			for _, key := range keys {
				pos, err := vec.FromBytesKey([]byte(strings.TrimPrefix(key, r.prefix)))
				if err != nil {
					// Чужой ключ под нашим префиксом — перечисление не роняем.
					continue
				}
				if !seen.add(pos) {
					continue
				}
				if !emit(ctx, out, PosResult{Pos: pos}) {
					return
				}
			}
			cursor = next
			if cursor == 0 {
				return
			}
		}
	}()
	return out
}

// Close закрывает соединение с Redis.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
