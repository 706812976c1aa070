package world

import (
	"fmt"

	"voxelworld.ai/internal/memcache"
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/neighborhood"
	"voxelworld.ai/internal/sim/world/surface"
	"voxelworld.ai/internal/voxel"
)

// lightAccess adapts a neighborhood to light.Accessor.
type lightAccess struct {
	*neighborhood.Neighborhood
	mats *catalogs.Materials
}

func (a lightAccess) Materials() *catalogs.Materials { return a.mats }

func (w *World) around(pos voxel.ChunkPos) *neighborhood.Neighborhood {
	return neighborhood.New(neighborhood.SourceFunc(w.GetChunk), pos, w.cfg.LightRadius)
}

// GetSurface returns the visible faces of pos, rebuilding them when the
// chunk changed since they were computed.
func (w *World) GetSurface(pos voxel.ChunkPos) (*voxel.Surface, error) {
	c, err := w.GetChunk(pos)
	if err != nil {
		return nil, err
	}
	s, err := w.cache.GetSurface(pos)
	if err != nil {
		return nil, err
	}
	if s != nil && s.ChunkVersion == c.Version() {
		return s, nil
	}
	v, err, _ := w.builds.Do("surface "+pos.String(), func() (any, error) {
		s, _, err := w.derive(pos)
		return s, err
	})
	s, _ = v.(*voxel.Surface)
	return s, err
}

// GetLightmap returns phase-0 or better light values for the surface of pos.
func (w *World) GetLightmap(pos voxel.ChunkPos) (*voxel.LightData, error) {
	s, err := w.GetSurface(pos)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return voxel.NewLightData(s, 0), nil
	}
	l, err := w.cache.GetLight(pos)
	if err != nil {
		return nil, err
	}
	if l != nil && fits(s, l) {
		return l, nil
	}
	v, err, _ := w.builds.Do("light "+pos.String(), func() (any, error) {
		l, err := w.computeLight(pos, s, w.around(pos), 0)
		if err != nil {
			return nil, err
		}
		if _, err := w.storeLightFor(pos, s, l); err != nil {
			return nil, err
		}
		return l, nil
	})
	l, _ = v.(*voxel.LightData)
	return l, err
}

// RefineLightmap runs the next light phase for pos. It reports false when
// the stored lightmap is already at the last phase.
func (w *World) RefineLightmap(pos voxel.ChunkPos) (*voxel.LightData, bool, error) {
	l, err := w.GetLightmap(pos)
	if err != nil {
		return nil, false, err
	}
	w.genMu.RLock()
	last := w.maxLight - 1
	w.genMu.RUnlock()
	if l.IsEmpty() || l.Phase >= last {
		return l, false, nil
	}
	// A surface rebuilt while the light was computed wins; try again on the
	// new one.
	for attempt := 0; attempt < 3; attempt++ {
		s, err := w.GetSurface(pos)
		if err != nil {
			return nil, false, err
		}
		next, err := w.computeLight(pos, s, w.around(pos), l.Phase+1)
		if err != nil {
			return nil, false, err
		}
		ok, err := w.storeLightFor(pos, s, next)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return next, true, nil
		}
		if l, err = w.GetLightmap(pos); err != nil {
			return nil, false, err
		}
		if l.IsEmpty() || l.Phase >= last {
			return l, false, nil
		}
	}
	return l, false, nil
}

// storeLightFor stores l only while s is still the cached surface of pos.
func (w *World) storeLightFor(pos voxel.ChunkPos, s *voxel.Surface, l *voxel.LightData) (bool, error) {
	w.lightMu.Lock()
	defer w.lightMu.Unlock()
	cur, err := w.cache.GetSurface(pos)
	if err != nil {
		return false, err
	}
	if cur != s {
		return false, nil
	}
	w.cache.StoreLight(pos, l)
	return true, nil
}

func fits(s *voxel.Surface, l *voxel.LightData) bool {
	return len(l.Opaque) == voxel.CountFaces(s.Opaque) && len(l.Transparent) == voxel.CountFaces(s.Transparent)
}

// derive recomputes the surface and phase-0 lightmap of pos and stores
// both. Surfaces of never generated air chunks are not stored.
func (w *World) derive(pos voxel.ChunkPos) (*voxel.Surface, *voxel.LightData, error) {
	n := w.around(pos)
	s, err := surface.Extract(n, w.mats)
	if err != nil {
		return nil, nil, fmt.Errorf("surface %v: %w", pos, err)
	}
	l, err := w.computeLight(pos, s, n, 0)
	if err != nil {
		return nil, nil, err
	}
	if n.Chunk(voxel.ChunkPos{}) == voxel.AirChunk {
		known, err := w.cache.IsSurfaceAvailable(pos)
		if err != nil || !known {
			return s, l, err
		}
	}
	w.lightMu.Lock()
	w.cache.StoreSurface(pos, s)
	if !s.IsEmpty() {
		w.cache.StoreLight(pos, l)
	}
	w.lightMu.Unlock()
	return s, l, nil
}

func (w *World) computeLight(pos voxel.ChunkPos, s *voxel.Surface, n *neighborhood.Neighborhood, phase int) (*voxel.LightData, error) {
	l := voxel.NewLightData(s, phase)
	if s.IsEmpty() {
		return l, nil
	}
	w.genMu.RLock()
	gens := w.lights
	w.genMu.RUnlock()

	acc := lightAccess{Neighborhood: n, mats: w.mats}
	for _, g := range gens {
		ph := min(phase, g.Phases()-1)
		if err := g.Generate(acc, pos, s.Opaque, l.Opaque, ph); err != nil {
			return nil, fmt.Errorf("light %s at %v: %w", g.Name(), pos, err)
		}
		if err := g.Generate(acc, pos, s.Transparent, l.Transparent, ph); err != nil {
			return nil, fmt.Errorf("light %s at %v: %w", g.Name(), pos, err)
		}
	}
	if err := n.Err(); err != nil {
		return nil, fmt.Errorf("light %v: %w", pos, err)
	}
	return l, nil
}

// CompressedChunk returns the stored representation of a generated chunk,
// or memcache.ErrEmpty for chunks above the coarse height.
func (w *World) CompressedChunk(pos voxel.ChunkPos) ([]byte, error) {
	c, err := w.GetChunk(pos)
	if err != nil {
		return nil, err
	}
	if c == voxel.AirChunk {
		return nil, memcache.ErrEmpty
	}
	return w.cache.CompressedChunk(pos)
}

func (w *World) CompressedSurface(pos voxel.ChunkPos) ([]byte, error) {
	s, err := w.GetSurface(pos)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return nil, memcache.ErrEmpty
	}
	return w.cache.CompressedSurface(pos)
}

func (w *World) CompressedLightmap(pos voxel.ChunkPos) ([]byte, error) {
	l, err := w.GetLightmap(pos)
	if err != nil {
		return nil, err
	}
	if l.IsEmpty() {
		return nil, memcache.ErrEmpty
	}
	return w.cache.CompressedLight(pos)
}
