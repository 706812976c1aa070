package light

import "voxelworld.ai/internal/voxel"

// Uniform sets every face to fixed values.
type Uniform struct {
	Sun, Ambient, Artificial, Secondary uint8
}

func (Uniform) Name() string { return "uniform" }
func (Uniform) Phases() int  { return 1 }

func (u Uniform) Generate(_ Accessor, _ voxel.ChunkPos, _ []voxel.Faces, out []voxel.Light, _ int) error {
	l := voxel.Light{Sun: clamp15(int(u.Sun)), Ambient: clamp15(int(u.Ambient)), Artificial: clamp15(int(u.Artificial)), Secondary: clamp15(int(u.Secondary))}
	for i := range out {
		out[i] = l
	}
	return nil
}
