// Package surface turns chunk contents into visible face lists.
package surface

import (
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/neighborhood"
	"voxelworld.ai/internal/voxel"
)

// Extract lists the visible faces of the center chunk of n.
//
// Opaque blocks show a face wherever the neighbor is not visually solid.
// Transparent blocks additionally hide faces shared with an identical block
// or with a neighbor whose facing texture matches. Custom models always
// report all six faces.
func Extract(n *neighborhood.Neighborhood, mats *catalogs.Materials) (*voxel.Surface, error) {
	c := n.Chunk(voxel.ChunkPos{})
	s := &voxel.Surface{ChunkVersion: c.Version()}
	if c == voxel.AirChunk {
		return s, n.Err()
	}

	for i := 0; i < voxel.ChunkVolume; i++ {
		t := c.AtIndex(i)
		if t == voxel.Air {
			continue
		}
		pos := voxel.LocalAt(i)
		m := mats.Get(t)

		// Custom models go to the opaque list whatever their transparency;
		// the renderer draws them from their model boxes.
		if m.IsCustom() {
			s.Opaque = append(s.Opaque, voxel.Faces{Pos: pos, Dirs: voxel.AllFaces, Type: t})
			continue
		}

		transparent := m.IsTransparent()
		x, y, z := int(pos.X), int(pos.Y), int(pos.Z)
		var mask uint8
		for _, d := range voxel.Directions {
			v := d.Vector()
			nx, ny, nz := x+v.X, y+v.Y, z+v.Z
			var other voxel.Block
			if nx >= 0 && nx < voxel.ChunkSize && ny >= 0 && ny < voxel.ChunkSize && nz >= 0 && nz < voxel.ChunkSize {
				other = c.At(nx, ny, nz)
			} else {
				other = n.Block(voxel.WorldPos{X: nx, Y: ny, Z: nz})
			}
			if mats.IsVisuallySolid(other) {
				continue
			}
			if transparent {
				if other == t || m.Textures[d] == mats.Get(other).Textures[d.Opposite()] {
					continue
				}
			}
			mask |= d.Bit()
		}
		if mask == 0 {
			continue
		}
		f := voxel.Faces{Pos: pos, Dirs: mask, Type: t}
		if transparent {
			s.Transparent = append(s.Transparent, f)
		} else {
			s.Opaque = append(s.Opaque, f)
		}
	}
	return s, n.Err()
}
