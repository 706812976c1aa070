package gen

import (
	"voxelworld.ai/internal/sim/world/logic/mathx"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// Flat fills every block below Level (a world z) with Material.
type Flat struct {
	terrain.Base
	Level    int
	Material voxel.Block
}

func (Flat) Name() string { return "flat" }

func (f Flat) Generate(_ terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	top := mathx.Clamp(f.Level-pos.Z*voxel.ChunkSize, 0, voxel.ChunkSize)
	for z := 0; z < top; z++ {
		for y := 0; y < voxel.ChunkSize; y++ {
			for x := 0; x < voxel.ChunkSize; x++ {
				c.Set(x, y, z, f.Material)
			}
		}
	}
	return nil
}

func (f Flat) EstimateHeight(_ terrain.Accessor, _ voxel.MapPos, prev voxel.Height) voxel.Height {
	return voxel.MaxHeight(prev, voxel.HeightFromBlocks(f.Level))
}

func (Flat) AreaKinds() []string { return []string{"heightmap", "surface"} }

// GenerateArea raises the height and surface maps to Level.
func (f Flat) GenerateArea(_ terrain.Accessor, _ string, _ voxel.MapPos, a *voxel.AreaData) bool {
	level := int16(mathx.Clamp(f.Level, -1<<15, 1<<15-1))
	changed := false
	for i, v := range a.Values {
		if v < level {
			a.Values[i] = level
			changed = true
		}
	}
	return changed
}
