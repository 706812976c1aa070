// Package light computes per-face light values for a chunk surface.
package light

import (
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/voxel"
)

// Accessor reads blocks around the chunk being lit, relative to the chunk
// origin.
type Accessor interface {
	Block(rel voxel.WorldPos) voxel.Block
	Contains(rel voxel.WorldPos) bool
	Materials() *catalogs.Materials
}

// Generator fills one channel (or several) of the light values for a face
// list. out is index-aligned with the set direction bits of faces. A
// generator may be called repeatedly with increasing phase and must
// overwrite what it wrote before.
type Generator interface {
	Name() string
	Generate(acc Accessor, pos voxel.ChunkPos, faces []voxel.Faces, out []voxel.Light, phase int) error
	Phases() int
}

// ForEachFace visits every set direction bit in list order, passing the
// index into the matching light array.
func ForEachFace(faces []voxel.Faces, fn func(i int, f voxel.Faces, d voxel.Direction)) {
	i := 0
	for _, f := range faces {
		for _, d := range voxel.Directions {
			if f.Dirs&d.Bit() != 0 {
				fn(i, f, d)
				i++
			}
		}
	}
}

func clamp15(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return uint8(v)
}
