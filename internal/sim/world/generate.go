package world

import (
	"fmt"

	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// genAccess is the terrain.Accessor handed to generators. Outside of chunk
// generation chunks is nil and no chunk can be read.
type genAccess struct {
	w      *World
	pos    voxel.ChunkPos
	span   []voxel.ChunkPos
	chunks map[voxel.ChunkPos]*voxel.Chunk
}

func (a *genAccess) AreaData(col voxel.MapPos, idx int) (*voxel.AreaData, error) {
	return a.w.GetAreaData(col, idx)
}

func (a *genAccess) FindArea(name string) int       { return a.w.FindArea(name) }
func (a *genAccess) Materials() *catalogs.Materials { return a.w.mats }
func (a *genAccess) Seed() int64                    { return a.w.cfg.Seed }

func (a *genAccess) Chunk(pos voxel.ChunkPos) (*voxel.Chunk, bool) {
	if a.chunks == nil {
		return nil, false
	}
	rel := pos.Sub(a.pos)
	for _, o := range a.span {
		if o == rel {
			c, ok := a.chunks[pos]
			return c, ok
		}
	}
	return nil, false
}

// GetAreaData returns the area of kind idx for col, generating it and
// letting contributing terrain generators shape it on first use.
func (w *World) GetAreaData(col voxel.MapPos, idx int) (*voxel.AreaData, error) {
	w.genMu.RLock()
	if idx < 0 || idx >= len(w.areas) {
		w.genMu.RUnlock()
		return nil, fmt.Errorf("world: area kind %d: %w", idx, terrain.ErrUnknownArea)
	}
	g := w.areas[idx]
	var contrib []terrain.AreaContributor
	for _, t := range w.terrain {
		if c, ok := t.(terrain.AreaContributor); ok {
			contrib = append(contrib, c)
		}
	}
	w.genMu.RUnlock()

	key := voxel.AreaKey(col, idx)
	if a, err := w.cache.GetArea(key); err != nil || a != nil {
		return a, err
	}
	v, err, _ := w.builds.Do("area "+key.String(), func() (any, error) {
		if a, err := w.cache.GetArea(key); err != nil || a != nil {
			return a, err
		}
		a, err := g.Generate(col)
		if err != nil {
			return nil, fmt.Errorf("area %s at %v: %w", g.Name(), col, err)
		}
		acc := &genAccess{w: w}
		for _, c := range contrib {
			for _, kind := range c.AreaKinds() {
				if kind == g.Name() {
					c.GenerateArea(acc, kind, col, a)
				}
			}
		}
		w.cache.StoreArea(key, a)
		return a, nil
	})
	a, _ := v.(*voxel.AreaData)
	return a, err
}

// GetChunk returns the fully generated chunk at pos. Chunks above the
// coarse height come back as voxel.AirChunk without touching storage.
// The returned chunk must not be modified.
func (w *World) GetChunk(pos voxel.ChunkPos) (*voxel.Chunk, error) {
	if c, ok := w.cache.PeekChunk(pos); ok && c.Phase() >= w.Phases() {
		return c, nil
	}
	h, err := w.CoarseHeight(pos.Column())
	if err != nil {
		return nil, err
	}
	if voxel.IsAirChunk(pos, h) {
		return voxel.AirChunk, nil
	}
	return w.generate(pos)
}

// Block reads one block in world coordinates.
func (w *World) Block(p voxel.WorldPos) (voxel.Block, error) {
	c, err := w.GetChunk(p.Chunk())
	if err != nil {
		return voxel.Air, err
	}
	return c.AtLocal(p.Local()), nil
}

// generate brings pos to the final phase, advancing every chunk of its
// region as far as the generators reading it require.
func (w *World) generate(pos voxel.ChunkPos) (*voxel.Chunk, error) {
	p := w.pipeline()
	n := len(p.gens)
	c, err := w.cache.GetChunk(pos)
	if err != nil {
		return nil, err
	}
	if c != nil && c.Phase() >= n {
		return c, nil
	}

	abs := make([]voxel.ChunkPos, len(p.region))
	for i, o := range p.region {
		abs[i] = pos.Add(o)
	}
	lk := w.locks.lock(abs...)
	defer lk.Unlock()

	chunks := make(map[voxel.ChunkPos]*voxel.Chunk, len(p.order))
	for _, off := range p.order {
		q := pos.Add(off)
		c, err := w.cache.LoadOrStoreChunk(q, voxel.NewChunk)
		if err != nil {
			return nil, fmt.Errorf("world: load %v: %w", q, err)
		}
		chunks[q] = c
	}
	center := chunks[pos]
	if center.Phase() >= n {
		return center, nil
	}

	var touched []voxel.ChunkPos
	err = w.runPipeline(p, pos, chunks, &touched)
	for _, q := range touched {
		w.cache.StoreChunk(q, chunks[q])
	}
	if err != nil {
		w.logger.Printf("generate %v: %v", pos, err)
		return nil, err
	}
	return center, nil
}

func (w *World) runPipeline(p pipeline, pos voxel.ChunkPos, chunks map[voxel.ChunkPos]*voxel.Chunk, touched *[]voxel.ChunkPos) error {
	seen := make(map[voxel.ChunkPos]bool)
	for k, g := range p.gens {
		for _, off := range p.order {
			if p.targets[off] <= k {
				continue
			}
			q := pos.Add(off)
			c := chunks[q]
			switch ph := c.Phase(); {
			case ph > k:
				continue
			case ph < k:
				return fmt.Errorf("%w: chunk %v at phase %d before generator %d (%s)",
					ErrGenerationInconsistency, q, ph, k, g.Name())
			}
			if err := w.runGenerator(g, k, k == len(p.gens)-1, q, c, chunks); err != nil {
				return err
			}
			if !seen[q] {
				seen[q] = true
				*touched = append(*touched, q)
			}
		}
	}
	return nil
}

// runGenerator applies generator k to c. A failed generator leaves the
// blocks and phase of c as they were. When k is the last generator the
// coarse height is adjusted before the chunk reaches its final phase, since
// GetChunk hands out final-phase chunks without locking.
func (w *World) runGenerator(g terrain.Generator, k int, last bool, pos voxel.ChunkPos, c *voxel.Chunk, chunks map[voxel.ChunkPos]*voxel.Chunk) error {
	acc := &genAccess{w: w, pos: pos, span: g.Span(), chunks: chunks}
	c.Lock()
	defer c.Unlock()
	backup := *c.Blocks()
	if err := g.Generate(acc, pos, c); err != nil {
		*c.Blocks() = backup
		return fmt.Errorf("generator %s at %v: %w", g.Name(), pos, err)
	}
	if last {
		if err := w.adjustHeight(pos, c); err != nil {
			*c.Blocks() = backup
			return fmt.Errorf("height %v: %w", pos, err)
		}
	}
	c.SetPhase(k + 1)
	return nil
}
