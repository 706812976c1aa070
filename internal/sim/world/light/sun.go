package light

import (
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/voxel"
)

// Sun estimates sky light by casting rays upward from the cell in front of
// each face. Phase 0 casts one vertical ray; later phases add four slanted
// rays and average them. Rays leaving the accessor count as open sky.
type Sun struct {
	// Ambient is written into the ambient channel of every face.
	Ambient uint8
}

func (Sun) Name() string { return "sun" }
func (Sun) Phases() int  { return 2 }

var (
	straightUp = voxel.WorldPos{Z: 1}
	slanted    = [4]voxel.WorldPos{{X: 1, Z: 1}, {X: -1, Z: 1}, {Y: 1, Z: 1}, {Y: -1, Z: 1}}
)

func (s Sun) Generate(acc Accessor, _ voxel.ChunkPos, faces []voxel.Faces, out []voxel.Light, phase int) error {
	mats := acc.Materials()
	ForEachFace(faces, func(i int, f voxel.Faces, d voxel.Direction) {
		start := voxel.WorldPos{X: int(f.Pos.X), Y: int(f.Pos.Y), Z: int(f.Pos.Z)}.Add(d.Vector())
		light := ray(acc, mats, start, straightUp)
		if phase > 0 {
			sum := light
			for _, step := range slanted {
				sum += ray(acc, mats, start, step)
			}
			light = sum / (1 + len(slanted))
		}
		if d == voxel.Down {
			light /= 2
		}
		out[i].Sun = clamp15(light)
		out[i].Ambient = clamp15(int(s.Ambient))
	})
	return nil
}

// ray walks from p in steps and returns 0..15. Solid blocks stop it,
// transparent ones dim it by their transparency.
func ray(acc Accessor, mats *catalogs.Materials, p, step voxel.WorldPos) int {
	light := 15 * 255
	for acc.Contains(p) {
		if b := acc.Block(p); b != voxel.Air {
			if mats.IsVisuallySolid(b) {
				return 0
			}
			if m := mats.Get(b); m.IsTransparent() {
				light = light * int(m.Transparency) / 255
			} else {
				light = light * 3 / 4
			}
		}
		p = p.Add(step)
	}
	return light / 255
}
