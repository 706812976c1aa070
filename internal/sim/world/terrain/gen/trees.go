package gen

import (
	"fmt"

	"voxelworld.ai/internal/sim/world/logic/mathx"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

// treeSpan covers every chunk whose trees can reach into the origin: the
// horizontal neighbors at the same level and one level down.
var treeSpan = func() []voxel.ChunkPos {
	var out []voxel.ChunkPos
	for z := -1; z <= 0; z++ {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				out = append(out, voxel.ChunkPos{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}()

// Trees plants at most one tree per Spacing×Spacing cell, on every Ground
// block of the site column. Ground must only ever sit on exposed surfaces
// (see Soil) and is never overwritten by a tree. A chunk receives the parts of every tree rooted in its
// span, so trees crossing chunk borders come out whole.
type Trees struct {
	Seed     int64
	Trunk    voxel.Block
	Leaves   voxel.Block
	Ground   voxel.Block
	Spacing  int
	Permille uint64
	// BiomeArea, when set, scales density: forests double it, deserts
	// have none.
	BiomeArea string
	// Clearing keeps a disc around the origin free of trees.
	Clearing int
}

func (Trees) Name() string           { return "trees" }
func (Trees) Span() []voxel.ChunkPos { return treeSpan }

// EstimateHeight allows canopies to poke one chunk above the terrain.
func (Trees) EstimateHeight(_ terrain.Accessor, _ voxel.MapPos, prev voxel.Height) voxel.Height {
	if !prev.Defined() {
		return prev
	}
	return prev + 1
}

// Site returns the tree position of grid cell (gx,gy) and its hash.
func (t Trees) Site(gx, gy int) (x, y int, h uint64) {
	s := max(t.Spacing, 1)
	h = mathx.Hash2(t.Seed, gx, gy)
	return gx*s + int((h>>10)%uint64(s)), gy*s + int((h>>20)%uint64(s)), h
}

func (t Trees) permille(acc terrain.Accessor, wx, wy int) (uint64, error) {
	if t.BiomeArea == "" {
		return t.Permille, nil
	}
	idx := acc.FindArea(t.BiomeArea)
	if idx < 0 {
		return 0, fmt.Errorf("trees: %w: %s", terrain.ErrUnknownArea, t.BiomeArea)
	}
	col := voxel.MapPos{X: mathx.FloorDiv(wx, voxel.ChunkSize), Y: mathx.FloorDiv(wy, voxel.ChunkSize)}
	a, err := acc.AreaData(col, idx)
	if err != nil {
		return 0, fmt.Errorf("trees: %w", err)
	}
	switch Biome(a.At(mathx.Mod(wx, voxel.ChunkSize), mathx.Mod(wy, voxel.ChunkSize))) {
	case Forest:
		return ScalePermille(t.Permille, 2000), nil
	case Desert:
		return 0, nil
	}
	return t.Permille, nil
}

func (t Trees) Generate(acc terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	s := max(t.Spacing, 1)
	origin := pos.Origin()
	// Grid cells whose sites fall within one chunk of pos horizontally.
	gx0 := mathx.FloorDiv(origin.X-voxel.ChunkSize, s)
	gx1 := mathx.FloorDiv(origin.X+2*voxel.ChunkSize-1, s)
	gy0 := mathx.FloorDiv(origin.Y-voxel.ChunkSize, s)
	gy1 := mathx.FloorDiv(origin.Y+2*voxel.ChunkSize-1, s)

	for gy := gy0; gy <= gy1; gy++ {
		for gx := gx0; gx <= gx1; gx++ {
			wx, wy, h := t.Site(gx, gy)
			if WithinClearing(wx, wy, t.Clearing) {
				continue
			}
			rel := voxel.WorldPos{X: wx - origin.X, Y: wy - origin.Y}
			if rel.X < -voxel.ChunkSize || rel.X >= 2*voxel.ChunkSize || rel.Y < -voxel.ChunkSize || rel.Y >= 2*voxel.ChunkSize {
				continue
			}
			p, err := t.permille(acc, wx, wy)
			if err != nil {
				return err
			}
			if h%1000 >= p {
				continue
			}
			height := 4 + int((h>>30)%3)
			for dz := -1; dz <= 0; dz++ {
				cp := voxel.WorldPos{X: wx, Y: wy, Z: origin.Z + dz*voxel.ChunkSize}.Chunk()
				src, ok := acc.Chunk(cp)
				if !ok {
					continue
				}
				l := voxel.WorldPos{X: wx, Y: wy}.Local()
				for z := voxel.ChunkSize - 1; z >= 0; z-- {
					if src.At(int(l.X), int(l.Y), z) != t.Ground {
						continue
					}
					t.plant(c, origin, voxel.WorldPos{X: wx, Y: wy, Z: cp.Z*voxel.ChunkSize + z}, height)
				}
			}
		}
	}
	return nil
}

// plant writes the parts of a tree rooted on ground into c, which starts at
// origin.
func (t Trees) plant(c *voxel.Chunk, origin, ground voxel.WorldPos, height int) {
	top := ground.Z + height
	for z := top - 2; z <= top+1; z++ {
		r := 2
		if z > top-1 {
			r = 1
		}
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if r == 2 && mathx.AbsInt(dx) == 2 && mathx.AbsInt(dy) == 2 {
					continue
				}
				t.set(c, origin, voxel.WorldPos{X: ground.X + dx, Y: ground.Y + dy, Z: z}, t.Leaves, voxel.Air)
			}
		}
	}
	for z := ground.Z + 1; z <= top; z++ {
		t.set(c, origin, voxel.WorldPos{X: ground.X, Y: ground.Y, Z: z}, t.Trunk, t.Leaves)
	}
}

// set writes b at w when w is inside c and currently Air or over.
func (t Trees) set(c *voxel.Chunk, origin, w voxel.WorldPos, b, over voxel.Block) {
	r := w.Sub(origin)
	if r.X < 0 || r.X >= voxel.ChunkSize || r.Y < 0 || r.Y >= voxel.ChunkSize || r.Z < 0 || r.Z >= voxel.ChunkSize {
		return
	}
	cur := c.At(r.X, r.Y, r.Z)
	if cur == voxel.Air || cur == over {
		c.Set(r.X, r.Y, r.Z, b)
	}
}
