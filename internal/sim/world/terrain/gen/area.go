package gen

import (
	"math"

	"voxelworld.ai/internal/sim/world/logic/mathx"
	"voxelworld.ai/internal/voxel"
)

// HeightmapArea produces terrain heights in blocks from layered value noise.
type HeightmapArea struct {
	Seed      int64
	Base      int
	Amplitude int
	// Cell is the lattice size of the coarsest octave, in blocks.
	Cell    int
	Octaves int
}

func (HeightmapArea) Name() string { return "heightmap" }

func (h HeightmapArea) Generate(col voxel.MapPos) (*voxel.AreaData, error) {
	a := voxel.NewAreaData()
	octaves := max(h.Octaves, 1)
	for y := 0; y < voxel.ChunkSize; y++ {
		for x := 0; x < voxel.ChunkSize; x++ {
			wx, wy := col.X*voxel.ChunkSize+x, col.Y*voxel.ChunkSize+y
			var sum, norm float64
			amp, cell := 1.0, h.Cell
			for o := 0; o < octaves; o++ {
				sum += amp * mathx.ValueNoise2(h.Seed+int64(o), wx, wy, cell)
				norm += amp
				amp /= 2
				cell = max(cell/2, 1)
			}
			v := h.Base + int(math.Round(float64(h.Amplitude)*sum/norm))
			a.Set(x, y, int16(mathx.Clamp(v, math.MinInt16, math.MaxInt16)))
		}
	}
	return a, nil
}

// FixedArea fills every column with one value.
type FixedArea struct {
	Kind  string
	Value int16
}

func (f FixedArea) Name() string { return f.Kind }

func (f FixedArea) Generate(voxel.MapPos) (*voxel.AreaData, error) {
	a := voxel.NewAreaData()
	a.Fill(f.Value)
	return a, nil
}

// BiomeArea stores a Biome per column.
type BiomeArea struct {
	Seed       int64
	RegionSize int
}

func (BiomeArea) Name() string { return "biome" }

func (b BiomeArea) Generate(col voxel.MapPos) (*voxel.AreaData, error) {
	a := voxel.NewAreaData()
	for y := 0; y < voxel.ChunkSize; y++ {
		for x := 0; x < voxel.ChunkSize; x++ {
			a.Set(x, y, int16(BiomeAt(b.Seed, col.X*voxel.ChunkSize+x, col.Y*voxel.ChunkSize+y, b.RegionSize)))
		}
	}
	return a, nil
}
