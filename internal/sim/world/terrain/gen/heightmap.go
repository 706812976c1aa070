package gen

import (
	"fmt"

	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// Heightmap fills each column up to the height stored in an area kind.
type Heightmap struct {
	terrain.Base
	Area     string
	Material voxel.Block
}

func (Heightmap) Name() string { return "heightmap" }

func (h Heightmap) area(acc terrain.Accessor, col voxel.MapPos) (*voxel.AreaData, error) {
	idx := acc.FindArea(h.Area)
	if idx < 0 {
		return nil, fmt.Errorf("heightmap: %w: %s", terrain.ErrUnknownArea, h.Area)
	}
	return acc.AreaData(col, idx)
}

func (h Heightmap) Generate(acc terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	a, err := h.area(acc, pos.Column())
	if err != nil {
		return err
	}
	base := pos.Z * voxel.ChunkSize
	if int(a.Max()) <= base {
		return nil
	}
	for y := 0; y < voxel.ChunkSize; y++ {
		for x := 0; x < voxel.ChunkSize; x++ {
			top := min(int(a.At(x, y))-base, voxel.ChunkSize)
			for z := 0; z < top; z++ {
				c.Set(x, y, z, h.Material)
			}
		}
	}
	return nil
}

func (h Heightmap) EstimateHeight(acc terrain.Accessor, col voxel.MapPos, prev voxel.Height) voxel.Height {
	a, err := h.area(acc, col)
	if err != nil {
		return prev
	}
	return voxel.MaxHeight(prev, voxel.HeightFromBlocks(int(a.Max())))
}

func (Heightmap) AreaKinds() []string { return []string{"surface"} }

// GenerateArea raises the surface map to the terrain height.
func (h Heightmap) GenerateArea(acc terrain.Accessor, _ string, col voxel.MapPos, a *voxel.AreaData) bool {
	src, err := h.area(acc, col)
	if err != nil {
		return false
	}
	changed := false
	for i, v := range src.Values {
		if a.Values[i] < v {
			a.Values[i] = v
			changed = true
		}
	}
	return changed
}
