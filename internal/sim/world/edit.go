package world

import (
	"errors"
	"fmt"

	"voxelworld.ai/internal/voxel"
)

var ErrUnknownBlock = errors.New("world: unknown block type")

// commit replaces the chunk at pos with an edited copy. edit reports
// whether it changed anything; the copy is stored with the next version and
// the coarse height adjusted before it becomes visible.
func (w *World) commit(pos voxel.ChunkPos, edit func(c *voxel.Chunk) bool) (bool, error) {
	n := w.Phases()
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := w.generate(pos); err != nil {
			return false, err
		}
		lk := w.locks.lock(pos)
		cur, err := w.cache.GetChunk(pos)
		if err != nil {
			lk.Unlock()
			return false, err
		}
		if cur == nil || cur.Phase() < n {
			// Evicted or reset between generate and lock.
			lk.Unlock()
			continue
		}
		next := cur.Clone()
		if !edit(next) {
			lk.Unlock()
			return false, nil
		}
		next.SetVersion(cur.Version() + 1)
		if err := w.adjustHeight(pos, next); err != nil {
			lk.Unlock()
			return false, err
		}
		w.cache.StoreChunk(pos, next)
		lk.Unlock()
		return true, nil
	}
	return false, fmt.Errorf("%w: chunk %v kept disappearing", ErrGenerationInconsistency, pos)
}

// ChangeBlock sets one block and regenerates the surface and lightmap of
// its chunk and of every neighbor sharing a face with the block. It returns
// the chunks whose derived data was rebuilt, none if the block already had
// that type.
func (w *World) ChangeBlock(p voxel.WorldPos, b voxel.Block) ([]voxel.ChunkPos, error) {
	if int(b) >= w.mats.Len() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, b)
	}
	pos, l := p.Chunk(), p.Local()
	var old voxel.Block
	changed, err := w.commit(pos, func(c *voxel.Chunk) bool {
		old = c.AtLocal(l)
		if old == b {
			return false
		}
		c.Set(int(l.X), int(l.Y), int(l.Z), b)
		return true
	})
	if err != nil || !changed {
		return nil, err
	}

	hooks := w.currentHooks()
	if hooks.OnBlockChange != nil {
		hooks.OnBlockChange(p, old, b)
	}
	affected := append([]voxel.ChunkPos{pos}, boundaryNeighbors(pos, l)...)
	for _, q := range affected {
		if _, _, err := w.derive(q); err != nil {
			return affected, err
		}
		if hooks.OnSurface != nil {
			hooks.OnSurface(q)
		}
	}
	return affected, nil
}

// boundaryNeighbors lists the chunks that share a face with the block at l.
func boundaryNeighbors(pos voxel.ChunkPos, l voxel.LocalPos) []voxel.ChunkPos {
	var out []voxel.ChunkPos
	edge := func(v int8, axis voxel.ChunkPos) {
		switch v {
		case 0:
			out = append(out, pos.Sub(axis))
		case voxel.ChunkSize - 1:
			out = append(out, pos.Add(axis))
		}
	}
	edge(l.X, voxel.ChunkPos{X: 1})
	edge(l.Y, voxel.ChunkPos{Y: 1})
	edge(l.Z, voxel.ChunkPos{Z: 1})
	return out
}

// ImportChunk stores c at pos as a finished chunk, replacing whatever was
// there, and rebuilds derived data that depends on it.
func (w *World) ImportChunk(pos voxel.ChunkPos, c *voxel.Chunk) error {
	for _, b := range c.Blocks() {
		if int(b) >= w.mats.Len() {
			return fmt.Errorf("%w: %d in chunk %v", ErrUnknownBlock, b, pos)
		}
	}
	if n := w.Phases(); c.Phase() < n {
		c.SetPhase(n)
	}

	lk := w.locks.lock(pos)
	cur, err := w.cache.GetChunk(pos)
	if err == nil && cur != nil && c.Version() <= cur.Version() {
		c.SetVersion(cur.Version() + 1)
	}
	if err == nil {
		err = w.adjustHeight(pos, c)
	}
	if err == nil {
		w.cache.StoreChunk(pos, c)
	}
	lk.Unlock()
	if err != nil {
		return fmt.Errorf("import %v: %w", pos, err)
	}

	if _, _, err := w.derive(pos); err != nil {
		return err
	}
	for _, d := range voxel.Directions {
		v := d.Vector()
		q := pos.Add(voxel.ChunkPos{X: v.X, Y: v.Y, Z: v.Z})
		known, err := w.cache.IsSurfaceAvailable(q)
		if err != nil {
			return err
		}
		if known {
			if _, _, err := w.derive(q); err != nil {
				return err
			}
		}
	}
	return nil
}
