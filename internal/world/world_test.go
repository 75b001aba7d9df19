package world

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mtworld/internal/config"
	"github.com/annel0/mtworld/internal/mapblock"
	"github.com/annel0/mtworld/internal/vec"
)

func writeWorldMT(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.mt"), []byte(content), 0o644))
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	writeWorldMT(t, dir, "world_name = Hallo\nbackend = sqlite3\ngameid = minetest\nкомментарий без равенства\n")

	meta, err := New(dir).Metadata()
	require.NoError(t, err)
	assert.Equal(t, "Hallo", meta["world_name"])
	assert.Equal(t, "sqlite3", meta["backend"])
	assert.Equal(t, "minetest", meta["gameid"])
	assert.Len(t, meta, 3, "строки без '=' пропускаются")
}

func TestOpenSqliteWorld(t *testing.T) {
	dir := t.TempDir()
	writeWorldMT(t, dir, "backend = sqlite3\n")

	md, err := New(dir).OpenMapData()
	require.NoError(t, err)
	defer md.Close()

	ctx := context.Background()
	pos := vec.Pos{X: 0, Y: 1, Z: 2}
	require.NoError(t, md.WriteBlock(ctx, pos, mapblock.Unloaded()))
	_, found, err := md.ReadBlock(ctx, pos)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMissingWorldMTFallsBackToSqlite(t *testing.T) {
	dir := t.TempDir()

	md, err := New(dir).OpenMapData()
	require.NoError(t, err, "отсутствие world.mt — не ошибка")
	defer md.Close()

	// Файл карты создан там, где его ждёт формат мира.
	_, err = os.Stat(filepath.Join(dir, "map.sqlite"))
	require.NoError(t, err)
}

func TestOpenBadgerWorld(t *testing.T) {
	dir := t.TempDir()
	writeWorldMT(t, dir, "backend = badger\n")

	md, err := New(dir).OpenMapData()
	require.NoError(t, err)
	defer md.Close()

	ctx := context.Background()
	require.NoError(t, md.WriteBlock(ctx, vec.Pos{X: 1}, mapblock.Unloaded()))
}

func TestUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	writeWorldMT(t, dir, "backend = leveldb\n")

	_, err := New(dir).OpenMapData()
	var unknown *ErrUnknownBackend
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "leveldb", unknown.Backend)
}

func TestRedisRequiresAddressAndHash(t *testing.T) {
	dir := t.TempDir()
	writeWorldMT(t, dir, "backend = redis\n")

	_, err := New(dir).OpenMapData()
	var cfgErr *ErrBackendConfig
	require.ErrorAs(t, err, &cfgErr)

	writeWorldMT(t, dir, "backend = redis\nredis_address = 127.0.0.1\n")
	_, err = New(dir).OpenMapData()
	require.ErrorAs(t, err, &cfgErr)
}

func TestOpenFromConfig(t *testing.T) {
	t.Run("sqlite by default", func(t *testing.T) {
		dir := t.TempDir()
		md, err := OpenFromConfig(&config.Config{
			Sqlite: config.SqliteConfig{Path: filepath.Join(dir, "map.sqlite")},
		})
		require.NoError(t, err, "пустой backend означает sqlite3")
		defer md.Close()

		ctx := context.Background()
		pos := vec.Pos{X: 3, Y: 2, Z: 1}
		require.NoError(t, md.WriteBlock(ctx, pos, mapblock.Unloaded()))
		_, found, err := md.ReadBlock(ctx, pos)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("badger", func(t *testing.T) {
		md, err := OpenFromConfig(&config.Config{
			Backend: "badger",
			Badger:  config.BadgerConfig{Dir: filepath.Join(t.TempDir(), "map.db")},
		})
		require.NoError(t, err)
		defer md.Close()

		require.NoError(t, md.WriteBlock(context.Background(), vec.Pos{X: 7}, mapblock.Unloaded()))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := OpenFromConfig(&config.Config{Backend: "mongodb"})
		var unknown *ErrUnknownBackend
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "mongodb", unknown.Backend)
	})
}

func TestMySQLDSN(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dsn, err := MySQLDSN("")
		require.NoError(t, err)
		assert.Equal(t, "tcp(localhost:3306)/", dsn)
	})

	t.Run("full", func(t *testing.T) {
		dsn, err := MySQLDSN("port=13306 host=db.local dbname=mtdb user=u password=p")
		require.NoError(t, err)
		assert.Equal(t, "u:p@tcp(db.local:13306)/mtdb", dsn)
	})

	t.Run("user without password", func(t *testing.T) {
		dsn, err := MySQLDSN("user=mt dbname=map")
		require.NoError(t, err)
		assert.Equal(t, "mt@tcp(localhost:3306)/map", dsn)
	})

	t.Run("malformed port", func(t *testing.T) {
		_, err := MySQLDSN("port=ß")
		var cfgErr *ErrBackendConfig
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("malformed pair", func(t *testing.T) {
		_, err := MySQLDSN("hostlocalhost")
		var cfgErr *ErrBackendConfig
		require.ErrorAs(t, err, &cfgErr)
	})
}
