// Package memcache keeps recently used world data in memory in front of a
// persistent store.
package memcache

import (
	"errors"
	"fmt"
	"io"
	"log"

	"voxelworld.ai/internal/lru"
	"voxelworld.ai/internal/persistence/codec"
	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/voxel"
)

// ErrEmpty reports data that is known to exist but carries nothing, such as
// the surface of a buried chunk.
var ErrEmpty = errors.New("memcache: empty")

// DefaultLimit is the per-kind entry limit enforced by Cleanup.
const DefaultLimit = 25000

type Options struct {
	Codec codec.Type
	// Limit is the entry count each kind is pruned to. Zero means
	// DefaultLimit.
	Limit  int
	Logger *log.Logger
}

// Cache holds five independent kinds, each with its own lock. Sizes are only
// enforced by Cleanup and TrimClean.
type Cache struct {
	store  storage.Storage
	limit  int
	logger *log.Logger

	areas    *kindCache[voxel.ChunkPos, *voxel.AreaData]
	chunks   *kindCache[voxel.ChunkPos, *voxel.Chunk]
	surfaces *kindCache[voxel.ChunkPos, *voxel.Surface]
	lights   *kindCache[voxel.ChunkPos, *voxel.LightData]
	heights  *kindCache[voxel.MapPos, voxel.Height]
}

func identity(p voxel.ChunkPos) voxel.ChunkPos { return p }

func newKind[K comparable, V any](s storage.Storage, ct codec.Type, kind storage.Kind) *kindCache[K, V] {
	return &kindCache[K, V]{
		kind:  kind,
		store: s,
		codec: ct,
		lru:   lru.New[K, V](),
		dirty: make(map[K]struct{}),
	}
}

func New(s storage.Storage, opts Options) *Cache {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	c := &Cache{store: s, limit: opts.Limit, logger: opts.Logger}

	c.areas = newKind[voxel.ChunkPos, *voxel.AreaData](s, opts.Codec, storage.KindArea)
	c.areas.encode = voxel.MarshalArea
	c.areas.decode = voxel.UnmarshalArea
	c.areas.storeAt = identity
	c.areas.isNil = func(a *voxel.AreaData) bool { return a == nil }

	c.chunks = newKind[voxel.ChunkPos, *voxel.Chunk](s, opts.Codec, storage.KindChunk)
	c.chunks.encode = func(ch *voxel.Chunk) []byte {
		ch.Lock()
		defer ch.Unlock()
		return voxel.MarshalChunk(ch)
	}
	c.chunks.decode = voxel.UnmarshalChunk
	c.chunks.storeAt = identity
	c.chunks.isNil = func(ch *voxel.Chunk) bool { return ch == nil }
	c.chunks.onWrite = func(ch *voxel.Chunk) { ch.SetDirty(false) }

	c.surfaces = newKind[voxel.ChunkPos, *voxel.Surface](s, opts.Codec, storage.KindSurface)
	c.surfaces.encode = voxel.MarshalSurface
	c.surfaces.decode = voxel.UnmarshalSurface
	c.surfaces.storeAt = identity
	c.surfaces.isNil = func(v *voxel.Surface) bool { return v == nil }

	c.lights = newKind[voxel.ChunkPos, *voxel.LightData](s, opts.Codec, storage.KindLight)
	c.lights.encode = voxel.MarshalLight
	c.lights.decode = voxel.UnmarshalLight
	c.lights.storeAt = identity
	c.lights.isNil = func(v *voxel.LightData) bool { return v == nil }

	c.heights = newKind[voxel.MapPos, voxel.Height](s, opts.Codec, storage.KindHeight)
	c.heights.encode = voxel.MarshalHeight
	c.heights.decode = voxel.UnmarshalHeight
	c.heights.storeAt = storage.HeightKey
	c.heights.isNil = func(h voxel.Height) bool { return !h.Defined() }

	return c
}

func (c *Cache) Storage() storage.Storage { return c.store }
func (c *Cache) Limit() int               { return c.limit }

// Area data. Keys come from voxel.AreaKey.

func (c *Cache) StoreArea(key voxel.ChunkPos, a *voxel.AreaData) { c.areas.put(key, a) }

func (c *Cache) IsAreaAvailable(key voxel.ChunkPos) (bool, error) {
	return c.areas.isAvailable(key)
}

// GetArea returns nil, nil when the area exists nowhere.
func (c *Cache) GetArea(key voxel.ChunkPos) (*voxel.AreaData, error) {
	v, _, err := c.areas.get(key)
	return v, err
}

// Chunks.

func (c *Cache) StoreChunk(key voxel.ChunkPos, ch *voxel.Chunk) {
	if ch != nil {
		ch.SetDirty(true)
	}
	c.chunks.put(key, ch)
}

func (c *Cache) IsChunkAvailable(key voxel.ChunkPos) (bool, error) {
	return c.chunks.isAvailable(key)
}

func (c *Cache) GetChunk(key voxel.ChunkPos) (*voxel.Chunk, error) {
	v, _, err := c.chunks.get(key)
	return v, err
}

// PeekChunk returns a cached chunk without touching storage or recency.
func (c *Cache) PeekChunk(key voxel.ChunkPos) (*voxel.Chunk, bool) {
	return c.chunks.peek(key)
}

// LoadOrStoreChunk returns the chunk at key from memory or storage, or
// atomically inserts fresh() as a new dirty chunk.
func (c *Cache) LoadOrStoreChunk(key voxel.ChunkPos, fresh func() *voxel.Chunk) (*voxel.Chunk, error) {
	return c.chunks.loadOrStore(key, func() *voxel.Chunk {
		ch := fresh()
		ch.SetDirty(true)
		return ch
	})
}

func (c *Cache) CompressedChunk(key voxel.ChunkPos) ([]byte, error) {
	b, _, err := c.chunks.compressed(key)
	return b, err
}

// Surfaces.

func (c *Cache) StoreSurface(key voxel.ChunkPos, s *voxel.Surface) { c.surfaces.put(key, s) }

func (c *Cache) IsSurfaceAvailable(key voxel.ChunkPos) (bool, error) {
	return c.surfaces.isAvailable(key)
}

func (c *Cache) GetSurface(key voxel.ChunkPos) (*voxel.Surface, error) {
	v, _, err := c.surfaces.get(key)
	return v, err
}

// CompressedSurface returns ErrEmpty for a surface without faces.
func (c *Cache) CompressedSurface(key voxel.ChunkPos) ([]byte, error) {
	b, s, err := c.surfaces.compressed(key)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return nil, ErrEmpty
	}
	return b, nil
}

// Lightmaps.

func (c *Cache) StoreLight(key voxel.ChunkPos, l *voxel.LightData) { c.lights.put(key, l) }

func (c *Cache) IsLightAvailable(key voxel.ChunkPos) (bool, error) {
	return c.lights.isAvailable(key)
}

func (c *Cache) GetLight(key voxel.ChunkPos) (*voxel.LightData, error) {
	v, _, err := c.lights.get(key)
	return v, err
}

// CompressedLight returns ErrEmpty when the lightmap has no values, or when
// it was never computed because the surface is empty.
func (c *Cache) CompressedLight(key voxel.ChunkPos) ([]byte, error) {
	b, l, err := c.lights.compressed(key)
	if err == nil {
		if l.IsEmpty() {
			return nil, ErrEmpty
		}
		return b, nil
	}
	if !errors.Is(err, storage.ErrNotInStorage) {
		return nil, err
	}
	s, serr := c.GetSurface(key)
	if serr != nil {
		return nil, serr
	}
	if s != nil && s.IsEmpty() {
		return nil, ErrEmpty
	}
	return nil, err
}

// Coarse heights.

// StoreHeight panics on UndefinedHeight, which is never persisted.
func (c *Cache) StoreHeight(col voxel.MapPos, h voxel.Height) { c.heights.put(col, h) }

func (c *Cache) IsHeightAvailable(col voxel.MapPos) (bool, error) {
	return c.heights.isAvailable(col)
}

// GetHeight returns UndefinedHeight when nothing is known.
func (c *Cache) GetHeight(col voxel.MapPos) (voxel.Height, error) {
	h, ok, err := c.heights.get(col)
	if err != nil || !ok {
		return voxel.UndefinedHeight, err
	}
	return h, nil
}

// Invalidate drops derived data for key from memory. Stored copies are
// overwritten on the next store.
func (c *Cache) Invalidate(key voxel.ChunkPos) {
	c.surfaces.remove(key)
	c.lights.remove(key)
}

// KindStats describes one kind after a Cleanup or via Stats.
type KindStats struct {
	Kind    storage.Kind
	Size    int
	Dirty   int
	Flushed int
	Evicted int
	Hits    int64
	Misses  int64
}

func (s KindStats) String() string {
	return fmt.Sprintf("%s size=%d dirty=%d flushed=%d evicted=%d", s.Kind, s.Size, s.Dirty, s.Flushed, s.Evicted)
}

func (c *Cache) passes() [5]func() (KindStats, error) {
	return [5]func() (KindStats, error){
		func() (KindStats, error) { return c.areas.flush(c.limit) },
		func() (KindStats, error) { return c.chunks.flush(c.limit) },
		func() (KindStats, error) { return c.surfaces.flush(c.limit) },
		func() (KindStats, error) { return c.lights.flush(c.limit) },
		func() (KindStats, error) { return c.heights.flush(c.limit) },
	}
}

// Cleanup writes every dirty entry to storage and prunes each kind to the
// limit, one kind at a time inside a single storage transaction. A kind
// whose flush fails keeps its dirty entries and is not pruned; the other
// kinds still run.
func (c *Cache) Cleanup() ([]KindStats, error) {
	var out []KindStats
	var errs []error
	err := storage.WithTransaction(c.store, func() error {
		for _, pass := range c.passes() {
			st, err := pass()
			out = append(out, st)
			if err != nil {
				c.logger.Printf("flush %s: %v", st.Kind, err)
				errs = append(errs, fmt.Errorf("flush %s: %w", st.Kind, err))
			}
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return out, err
	}
	if err := c.store.Cleanup(); err != nil {
		return out, fmt.Errorf("storage cleanup: %w", err)
	}
	return out, nil
}

// TrimClean evicts clean entries above the limit without writing anything.
func (c *Cache) TrimClean() int {
	return c.areas.trimClean(c.limit) +
		c.chunks.trimClean(c.limit) +
		c.surfaces.trimClean(c.limit) +
		c.lights.trimClean(c.limit) +
		c.heights.trimClean(c.limit)
}

func (c *Cache) Stats() []KindStats {
	return []KindStats{
		c.areas.stats(),
		c.chunks.stats(),
		c.surfaces.stats(),
		c.lights.stats(),
		c.heights.stats(),
	}
}
