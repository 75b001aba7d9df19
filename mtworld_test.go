package mtworld_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mtworld"
)

// TestPublicSurface проходит полный пользовательский сценарий через
// корневой пакет: открыть мир, записать ноды, перечитать их.
func TestPublicSurface(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.mt"), []byte("backend = sqlite3\n"), 0o644))

	md, err := mtworld.NewWorld(dir).OpenMapData()
	require.NoError(t, err)
	defer md.Close()

	ctx := context.Background()
	nodePos := mtworld.Pos{X: 8, Y: 9, Z: 10}

	vm := mtworld.NewVoxelManip(md)
	require.NoError(t, vm.SetNode(ctx, nodePos, mtworld.Node{Content: "default:stone", Param1: 0x0F}))
	require.NoError(t, vm.Commit(ctx))

	blockPos := nodePos.BlockAt()
	blk, found, err := md.ReadBlock(ctx, blockPos)
	require.NoError(t, err)
	require.True(t, found)

	count := 0
	stone := 0
	it := md.IterBlockNodes(blk)
	for {
		_, node, ok := it.Next()
		if !ok {
			break
		}
		if node.Content == "default:stone" {
			stone++
		}
		count++
	}
	assert.Equal(t, mtworld.BlockVolume, count)
	assert.Equal(t, 1, stone)
}

// TestPublicCodec: кодек доступен и без фасада.
func TestPublicCodec(t *testing.T) {
	codec, err := mtworld.NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	blk := mtworld.UnloadedBlock()
	assert.Equal(t, uint32(mtworld.TimestampUndefined), blk.Timestamp)

	data, err := codec.Encode(blk)
	require.NoError(t, err)
	require.Equal(t, uint8(mtworld.VersionLatest), data[0])

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, blk, got)
}

// TestPublicConfigOpen: путь открытия по конфигурации.
func TestPublicConfigOpen(t *testing.T) {
	var cfg mtworld.Config
	cfg.Backend = "badger"
	cfg.Badger.Dir = filepath.Join(t.TempDir(), "map.db")

	md, err := mtworld.OpenFromConfig(&cfg)
	require.NoError(t, err)
	defer md.Close()

	require.NoError(t, md.WriteBlock(context.Background(), mtworld.Pos{X: 1}, mtworld.UnloadedBlock()))
}

// TestPublicBackendConstructors: бэкенд, открытый напрямую,
// совместим с фасадом.
func TestPublicBackendConstructors(t *testing.T) {
	b, err := mtworld.OpenSqlite(filepath.Join(t.TempDir(), "map.sqlite"))
	require.NoError(t, err)

	md, err := mtworld.NewMapData(b)
	require.NoError(t, err)
	defer md.Close()

	ctx := context.Background()
	pos := mtworld.Pos{X: -3, Y: 0, Z: 9}
	require.NoError(t, md.WriteBlock(ctx, pos, mtworld.UnloadedBlock()))

	got := map[mtworld.Pos]bool{}
	for res := range md.AllPositions(ctx) {
		require.NoError(t, res.Err)
		got[res.Pos] = true
	}
	assert.True(t, got[pos])
}
