// Package world drives chunk generation, derived data and edits on top of
// the memory cache.
package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"voxelworld.ai/internal/memcache"
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/light"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// ErrGenerationInconsistency means a chunk inside a locked region was found
// behind the phase the pipeline had reached. The operation is aborted and
// the cache left as it was.
var ErrGenerationInconsistency = errors.New("world: generation inconsistency")

type Config struct {
	Seed int64
	// LightRadius is the neighborhood radius handed to light generators.
	LightRadius int
	LockShards  int
	// QueueSize bounds the request queue used by Start/Submit.
	QueueSize int
}

// Hooks are called after the corresponding change is committed. Any of them
// may be nil. They run on the goroutine that made the change and must not
// call back into the World.
type Hooks struct {
	OnHeight      func(col voxel.MapPos, h voxel.Height)
	OnSurface     func(pos voxel.ChunkPos)
	OnBlockChange func(pos voxel.WorldPos, old, cur voxel.Block)
}

type World struct {
	cfg    Config
	cache  *memcache.Cache
	mats   *catalogs.Materials
	logger *log.Logger

	// genMu guards the generator lists and what is derived from them.
	genMu    sync.RWMutex
	areas    []terrain.AreaGenerator
	terrain  []terrain.Generator
	lights   []light.Generator
	region   []voxel.ChunkPos
	targets  map[voxel.ChunkPos]int
	order    []voxel.ChunkPos
	maxLight int

	locks  *lockTable
	builds singleflight.Group
	// lightMu pairs a stored lightmap with the surface it was computed for.
	lightMu sync.Mutex

	heightMu      sync.Mutex
	heightChanges map[voxel.MapPos]voxel.Height

	hooksMu sync.RWMutex
	hooks   Hooks

	queue queue
}

func New(cfg Config, cache *memcache.Cache, mats *catalogs.Materials, logger *log.Logger) *World {
	if cache == nil {
		panic("world: nil cache")
	}
	if mats == nil {
		mats = catalogs.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.LightRadius <= 0 {
		cfg.LightRadius = 1
	}
	w := &World{
		cfg:           cfg,
		cache:         cache,
		mats:          mats,
		logger:        logger,
		locks:         newLockTable(cfg.LockShards),
		heightChanges: make(map[voxel.MapPos]voxel.Height),
		maxLight:      1,
	}
	w.rebuildPipeline()
	return w
}

func (w *World) Materials() *catalogs.Materials { return w.mats }
func (w *World) Cache() *memcache.Cache         { return w.cache }
func (w *World) Seed() int64                    { return w.cfg.Seed }

func (w *World) SetHooks(h Hooks) {
	w.hooksMu.Lock()
	w.hooks = h
	w.hooksMu.Unlock()
}

func (w *World) currentHooks() Hooks {
	w.hooksMu.RLock()
	defer w.hooksMu.RUnlock()
	return w.hooks
}

// AddAreaGenerator registers g and returns its kind index. Registering two
// generators with the same name is an error.
func (w *World) AddAreaGenerator(g terrain.AreaGenerator) (int, error) {
	w.genMu.Lock()
	defer w.genMu.Unlock()
	for _, a := range w.areas {
		if a.Name() == g.Name() {
			return -1, fmt.Errorf("world: duplicate area generator %q", g.Name())
		}
	}
	w.areas = append(w.areas, g)
	return len(w.areas) - 1, nil
}

// FindArea resolves an area kind name to its index, or -1.
func (w *World) FindArea(name string) int {
	w.genMu.RLock()
	defer w.genMu.RUnlock()
	return w.findAreaLocked(name)
}

func (w *World) findAreaLocked(name string) int {
	for i, a := range w.areas {
		if a.Name() == name {
			return i
		}
	}
	return -1
}

// AddTerrainGenerator appends g to the pipeline. Generators must be added
// before any chunk is generated; chunks already stored keep their phase.
func (w *World) AddTerrainGenerator(g terrain.Generator) {
	w.genMu.Lock()
	w.terrain = append(w.terrain, g)
	w.rebuildPipelineLocked()
	w.genMu.Unlock()
}

func (w *World) AddLightmapGenerator(g light.Generator) {
	w.genMu.Lock()
	w.lights = append(w.lights, g)
	w.rebuildPipelineLocked()
	w.genMu.Unlock()
}

func (w *World) rebuildPipeline() {
	w.genMu.Lock()
	w.rebuildPipelineLocked()
	w.genMu.Unlock()
}

func (w *World) rebuildPipelineLocked() {
	w.region = terrain.Region(w.terrain)
	w.targets = terrain.Targets(w.terrain)
	w.order = make([]voxel.ChunkPos, 0, len(w.targets))
	for p := range w.targets {
		w.order = append(w.order, p)
	}
	terrain.SortPositions(w.order)
	w.maxLight = 1
	for _, g := range w.lights {
		w.maxLight = max(w.maxLight, g.Phases())
	}
}

// pipeline is an immutable view of the generator configuration.
type pipeline struct {
	gens    []terrain.Generator
	region  []voxel.ChunkPos
	targets map[voxel.ChunkPos]int
	order   []voxel.ChunkPos
}

func (w *World) pipeline() pipeline {
	w.genMu.RLock()
	defer w.genMu.RUnlock()
	return pipeline{gens: slices.Clone(w.terrain), region: w.region, targets: w.targets, order: w.order}
}

// Phases is the number of terrain generators, the phase of a finished chunk.
func (w *World) Phases() int {
	w.genMu.RLock()
	defer w.genMu.RUnlock()
	return len(w.terrain)
}

// Region returns the chunk offsets locked while generating one chunk.
func (w *World) Region() []voxel.ChunkPos {
	return w.pipeline().region
}

// Cleanup flushes and prunes the cache.
func (w *World) Cleanup() error {
	stats, err := w.cache.Cleanup()
	for _, s := range stats {
		if s.Flushed > 0 || s.Evicted > 0 {
			w.logger.Printf("cleanup %s", s)
		}
	}
	return err
}

// TrimClean evicts clean cache entries over the limit.
func (w *World) TrimClean() int {
	return w.cache.TrimClean()
}
