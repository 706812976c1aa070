package gen

import (
	"fmt"

	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

var soilSpan = []voxel.ChunkPos{{}, {Z: 1}}

// Soil replaces the top blocks of exposed Replace material with layers,
// topmost first. Layers is indexed by biome when BiomeArea names an area
// kind; otherwise only Layers[0] is used.
type Soil struct {
	terrain.Base
	Replace   voxel.Block
	Layers    [][]voxel.Block
	BiomeArea string
}

func (Soil) Name() string           { return "soil" }
func (Soil) Span() []voxel.ChunkPos { return soilSpan }

func (s Soil) Generate(acc terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	if len(s.Layers) == 0 {
		return nil
	}
	var biomes *voxel.AreaData
	if s.BiomeArea != "" {
		idx := acc.FindArea(s.BiomeArea)
		if idx < 0 {
			return fmt.Errorf("soil: %w: %s", terrain.ErrUnknownArea, s.BiomeArea)
		}
		a, err := acc.AreaData(pos.Column(), idx)
		if err != nil {
			return fmt.Errorf("soil: %w", err)
		}
		biomes = a
	}
	above, ok := acc.Chunk(pos.Add(voxel.ChunkPos{Z: 1}))
	if !ok {
		above = voxel.AirChunk
	}

	// A column of this chunk followed by the one above it.
	var col [2 * voxel.ChunkSize]voxel.Block
	for y := 0; y < voxel.ChunkSize; y++ {
		for x := 0; x < voxel.ChunkSize; x++ {
			layers := s.Layers[0]
			if biomes != nil {
				b := int(biomes.At(x, y))
				if b < 0 || b >= len(s.Layers) {
					continue
				}
				layers = s.Layers[b]
			}
			for z := 0; z < voxel.ChunkSize; z++ {
				col[z] = c.At(x, y, z)
				col[z+voxel.ChunkSize] = above.At(x, y, z)
			}
			limit := min(voxel.ChunkSize+len(layers), len(col)-1)
			for top := 0; top < limit; top++ {
				if col[top] == voxel.Air || col[top+1] != voxel.Air {
					continue
				}
				for i, m := range layers {
					z := top - i
					if z < 0 {
						break
					}
					if z < voxel.ChunkSize && c.At(x, y, z) == s.Replace {
						c.Set(x, y, z, m)
					}
				}
			}
		}
	}
	return nil
}
