package memcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelworld.ai/internal/persistence/codec"
	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/voxel"
)

func newCache(t *testing.T, limit int) (*Cache, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	return New(mem, Options{Codec: codec.LZ4, Limit: limit}), mem
}

func stoneChunk(level int) *voxel.Chunk {
	c := voxel.NewChunk()
	for i := 0; i < level*voxel.ChunkArea; i++ {
		c.SetIndex(i, 1)
	}
	return c
}

func dirtyOf(c *Cache, kind storage.Kind) int {
	for _, st := range c.Stats() {
		if st.Kind == kind {
			return st.Dirty
		}
	}
	return -1
}

func TestStoreNilPanics(t *testing.T) {
	c, _ := newCache(t, 10)
	assert.Panics(t, func() { c.StoreChunk(voxel.ChunkPos{}, nil) })
	assert.Panics(t, func() { c.StoreSurface(voxel.ChunkPos{}, nil) })
	assert.Panics(t, func() { c.StoreHeight(voxel.MapPos{}, voxel.UndefinedHeight) })
}

func TestGetMissAndHit(t *testing.T) {
	c, _ := newCache(t, 10)
	key := voxel.ChunkPos{X: 1, Y: 2, Z: 3}

	got, err := c.GetChunk(key)
	require.NoError(t, err)
	assert.Nil(t, got)
	ok, err := c.IsChunkAvailable(key)
	require.NoError(t, err)
	assert.False(t, ok)

	ch := stoneChunk(3)
	c.StoreChunk(key, ch)
	assert.True(t, ch.IsDirty())
	got, err = c.GetChunk(key)
	require.NoError(t, err)
	assert.Same(t, ch, got)
	ok, _ = c.IsChunkAvailable(key)
	assert.True(t, ok)
}

func TestCleanupFlushesThenPrunes(t *testing.T) {
	c, mem := newCache(t, 2)
	chunks := map[voxel.ChunkPos]*voxel.Chunk{}
	for i := 0; i < 5; i++ {
		key := voxel.ChunkPos{X: i}
		chunks[key] = stoneChunk(i)
		c.StoreChunk(key, chunks[key])
	}
	c.StoreHeight(voxel.MapPos{X: 1}, 4)

	stats, err := c.Cleanup()
	require.NoError(t, err)
	require.Len(t, stats, 5)
	for _, st := range stats {
		assert.Equal(t, 0, st.Dirty, st.String())
		assert.LessOrEqual(t, st.Size, 2, st.String())
	}
	assert.Equal(t, 5, mem.Len(storage.KindChunk))
	assert.Equal(t, 1, mem.Len(storage.KindHeight))
	for _, ch := range chunks {
		assert.False(t, ch.IsDirty())
	}

	// Evicted chunks come back from storage clean.
	got, err := c.GetChunk(voxel.ChunkPos{X: 0})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(chunks[voxel.ChunkPos{X: 0}]))
	assert.Equal(t, 0, dirtyOf(c, storage.KindChunk))

	h, err := c.GetHeight(voxel.MapPos{X: 1})
	require.NoError(t, err)
	assert.Equal(t, voxel.Height(4), h)
	h, err = c.GetHeight(voxel.MapPos{X: 2})
	require.NoError(t, err)
	assert.Equal(t, voxel.UndefinedHeight, h)
}

type failingStore struct {
	*storage.Memory
	fail storage.Kind
}

func (f failingStore) Store(kind storage.Kind, key voxel.ChunkPos, data []byte) error {
	if kind == f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Store(kind, key, data)
}

func TestCleanupKeepsDirtyOnFailure(t *testing.T) {
	mem := storage.NewMemory()
	c := New(failingStore{Memory: mem, fail: storage.KindSurface}, Options{Limit: 1})
	for i := 0; i < 3; i++ {
		c.StoreSurface(voxel.ChunkPos{X: i}, &voxel.Surface{})
		c.StoreChunk(voxel.ChunkPos{X: i}, stoneChunk(1))
	}

	_, err := c.Cleanup()
	require.Error(t, err)
	assert.Equal(t, 3, dirtyOf(c, storage.KindSurface))
	for _, st := range c.Stats() {
		if st.Kind == storage.KindSurface {
			assert.Equal(t, 3, st.Size, "failed kind must not be pruned")
		}
		if st.Kind == storage.KindChunk {
			assert.Equal(t, 1, st.Size)
			assert.Equal(t, 0, st.Dirty)
		}
	}
}

func TestTrimCleanNeverDropsDirty(t *testing.T) {
	c, _ := newCache(t, 1)
	c.StoreArea(voxel.ChunkPos{X: 1}, voxel.NewAreaData())
	c.StoreArea(voxel.ChunkPos{X: 2}, voxel.NewAreaData())
	assert.Equal(t, 0, c.TrimClean())

	_, err := c.Cleanup()
	require.NoError(t, err)
	c.StoreArea(voxel.ChunkPos{X: 3}, voxel.NewAreaData())
	_, err = c.GetArea(voxel.ChunkPos{X: 1})
	require.NoError(t, err)
	// Recency is now X=1 (clean), X=3 (dirty), X=2 (clean).
	assert.Equal(t, 2, c.TrimClean())
	ok, err := c.IsAreaAvailable(voxel.ChunkPos{X: 3})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, dirtyOf(c, storage.KindArea))
}

func TestLoadOrStoreChunkCreatesOnce(t *testing.T) {
	c, _ := newCache(t, 10)
	key := voxel.ChunkPos{Z: -1}
	calls := 0
	fresh := func() *voxel.Chunk { calls++; return voxel.NewChunk() }

	a, err := c.LoadOrStoreChunk(key, fresh)
	require.NoError(t, err)
	b, err := c.LoadOrStoreChunk(key, fresh)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
	assert.True(t, a.IsDirty())
}

func TestCompressedAccess(t *testing.T) {
	c, _ := newCache(t, 10)
	key := voxel.ChunkPos{X: 5}

	_, err := c.CompressedChunk(key)
	assert.ErrorIs(t, err, storage.ErrNotInStorage)
	_, err = c.CompressedLight(key)
	assert.ErrorIs(t, err, storage.ErrNotInStorage)

	ch := stoneChunk(2)
	c.StoreChunk(key, ch)
	block, err := c.CompressedChunk(key)
	require.NoError(t, err)
	raw, err := codec.Decompress(block)
	require.NoError(t, err)
	back, err := voxel.UnmarshalChunk(raw)
	require.NoError(t, err)
	assert.True(t, back.Equal(ch))
	assert.False(t, ch.IsDirty(), "dirty entries are written through")

	c.StoreSurface(key, &voxel.Surface{})
	_, err = c.CompressedSurface(key)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = c.CompressedLight(key)
	assert.ErrorIs(t, err, ErrEmpty)

	s := &voxel.Surface{Opaque: []voxel.Faces{{Dirs: voxel.Up.Bit(), Type: 1}}}
	c.StoreSurface(key, s)
	c.StoreLight(key, voxel.NewLightData(s, 0))
	_, err = c.CompressedSurface(key)
	require.NoError(t, err)
	_, err = c.CompressedLight(key)
	require.NoError(t, err)
}

func TestCompressedFromStorageAfterEviction(t *testing.T) {
	c, _ := newCache(t, 1)
	a := voxel.ChunkPos{X: 1}
	s := &voxel.Surface{Transparent: []voxel.Faces{{Dirs: 3, Type: 7}}}
	c.StoreSurface(a, s)
	c.StoreSurface(voxel.ChunkPos{X: 2}, &voxel.Surface{})
	_, err := c.Cleanup()
	require.NoError(t, err)

	block, err := c.CompressedSurface(a)
	require.NoError(t, err)
	raw, err := codec.Decompress(block)
	require.NoError(t, err)
	got, err := voxel.UnmarshalSurface(raw)
	require.NoError(t, err)
	assert.Equal(t, s.Transparent, got.Transparent)
}

func TestInvalidateDropsDerivedData(t *testing.T) {
	c, _ := newCache(t, 10)
	key := voxel.ChunkPos{}
	s := &voxel.Surface{}
	c.StoreSurface(key, s)
	c.StoreLight(key, voxel.NewLightData(s, 0))
	c.Invalidate(key)

	got, err := c.GetSurface(key)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, dirtyOf(c, storage.KindLight))
}
