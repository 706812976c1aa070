package gen

import (
	"voxelworld.ai/internal/sim/world/logic/mathx"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// Ores swaps Replace blocks for Material inside clusters. Clusters are
// scattered per horizontal slab of 2*Radius+1 blocks between MinZ and MaxZ.
type Ores struct {
	terrain.Base
	Seed       int64
	Material   voxel.Block
	Replace    voxel.Block
	Grid       int
	Radius     int
	Permille   uint64
	MinZ, MaxZ int
}

func (Ores) Name() string { return "ores" }

func (o Ores) Generate(_ terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	base := pos.Z * voxel.ChunkSize
	lo := mathx.Clamp(o.MinZ-base, 0, voxel.ChunkSize)
	hi := mathx.Clamp(o.MaxZ-base, 0, voxel.ChunkSize)
	slab := 2*o.Radius + 1
	for z := lo; z < hi; z++ {
		seed := o.Seed ^ int64(mathx.Hash2(o.Seed, mathx.FloorDiv(base+z, slab), 0))
		for y := 0; y < voxel.ChunkSize; y++ {
			for x := 0; x < voxel.ChunkSize; x++ {
				if c.At(x, y, z) != o.Replace {
					continue
				}
				wx, wy := pos.X*voxel.ChunkSize+x, pos.Y*voxel.ChunkSize+y
				if InCluster(seed, wx, wy, o.Grid, o.Radius, o.Permille) {
					c.Set(x, y, z, o.Material)
				}
			}
		}
	}
	return nil
}
