package gen

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

type fakeAccess struct {
	chunks map[voxel.ChunkPos]*voxel.Chunk
	areas  []terrain.AreaGenerator
	mats   *catalogs.Materials
}

func newFakeAccess(areas ...terrain.AreaGenerator) *fakeAccess {
	return &fakeAccess{chunks: map[voxel.ChunkPos]*voxel.Chunk{}, areas: areas, mats: catalogs.Default()}
}

func (f *fakeAccess) AreaData(col voxel.MapPos, idx int) (*voxel.AreaData, error) {
	return f.areas[idx].Generate(col)
}

func (f *fakeAccess) FindArea(name string) int {
	for i, a := range f.areas {
		if a.Name() == name {
			return i
		}
	}
	return -1
}

func (f *fakeAccess) Chunk(p voxel.ChunkPos) (*voxel.Chunk, bool) {
	if c, ok := f.chunks[p]; ok {
		return c, true
	}
	return voxel.AirChunk, true
}

func (f *fakeAccess) Materials() *catalogs.Materials { return f.mats }
func (f *fakeAccess) Seed() int64                    { return 7 }

func (f *fakeAccess) chunk(p voxel.ChunkPos) *voxel.Chunk {
	c, ok := f.chunks[p]
	if !ok {
		c = voxel.NewChunk()
		f.chunks[p] = c
	}
	return c
}

// run applies gens to every listed chunk, one generator at a time.
func (f *fakeAccess) run(t *testing.T, gens []terrain.Generator, ps ...voxel.ChunkPos) {
	t.Helper()
	for k, g := range gens {
		for _, p := range ps {
			c := f.chunk(p)
			if err := g.Generate(f, p, c); err != nil {
				t.Fatalf("%s at %v: %v", g.Name(), p, err)
			}
			c.SetPhase(k + 1)
		}
	}
}

func block(t *testing.T, name string) voxel.Block {
	t.Helper()
	b, err := catalogs.Default().Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return b
}

func TestFlatThenSoil(t *testing.T) {
	stone, grass := block(t, "stone"), block(t, "grass")
	f := newFakeAccess()
	gens := []terrain.Generator{
		Flat{Level: 5, Material: stone},
		Soil{Replace: stone, Layers: [][]voxel.Block{{grass}}},
	}
	origin := voxel.ChunkPos{}
	f.run(t, gens, voxel.ChunkPos{Z: 1}, origin)

	c := f.chunks[origin]
	if c.Phase() != 2 {
		t.Fatalf("phase = %d, want 2", c.Phase())
	}
	for y := 0; y < voxel.ChunkSize; y++ {
		for x := 0; x < voxel.ChunkSize; x++ {
			for z := 0; z < voxel.ChunkSize; z++ {
				want := voxel.Air
				switch {
				case z < 4:
					want = stone
				case z == 4:
					want = grass
				}
				if got := c.At(x, y, z); got != want {
					t.Fatalf("block (%d,%d,%d) = %d, want %d", x, y, z, got, want)
				}
			}
		}
	}
	if !f.chunks[voxel.ChunkPos{Z: 1}].IsAir() {
		t.Fatalf("chunk above should stay air")
	}
}

func TestSoilAtChunkTop(t *testing.T) {
	stone, grass, dirt := block(t, "stone"), block(t, "grass"), block(t, "dirt")
	f := newFakeAccess()
	gens := []terrain.Generator{
		Flat{Level: 17, Material: stone},
		Soil{Replace: stone, Layers: [][]voxel.Block{{grass, dirt, dirt}}},
	}
	f.run(t, gens, voxel.ChunkPos{}, voxel.ChunkPos{Z: 1})

	low, high := f.chunks[voxel.ChunkPos{}], f.chunks[voxel.ChunkPos{Z: 1}]
	if high.At(3, 3, 0) != grass {
		t.Fatalf("surface block = %d, want grass", high.At(3, 3, 0))
	}
	if low.At(3, 3, 15) != dirt || low.At(3, 3, 14) != dirt || low.At(3, 3, 13) != stone {
		t.Fatalf("layers below the chunk border not applied: %d %d %d",
			low.At(3, 3, 15), low.At(3, 3, 14), low.At(3, 3, 13))
	}
}

func TestFlatEstimateAndArea(t *testing.T) {
	f := Flat{Level: 5}
	if h := f.EstimateHeight(nil, voxel.MapPos{}, voxel.UndefinedHeight); h != 1 {
		t.Fatalf("estimate = %d", h)
	}
	if h := f.EstimateHeight(nil, voxel.MapPos{}, 3); h != 3 {
		t.Fatalf("estimate must not lower prev: %d", h)
	}
	a := voxel.NewAreaData()
	a.Fill(-10)
	a.Set(0, 0, 9)
	if !f.GenerateArea(nil, "heightmap", voxel.MapPos{}, a) {
		t.Fatalf("expected area change")
	}
	if a.At(1, 1) != 5 || a.At(0, 0) != 9 {
		t.Fatalf("area = %d %d", a.At(1, 1), a.At(0, 0))
	}
}

func TestHeightmapTerrain(t *testing.T) {
	stone := block(t, "stone")
	f := newFakeAccess(FixedArea{Kind: "heightmap", Value: 20})
	h := Heightmap{Area: "heightmap", Material: stone}
	f.run(t, []terrain.Generator{h}, voxel.ChunkPos{}, voxel.ChunkPos{Z: 1}, voxel.ChunkPos{Z: 2})

	if f.chunks[voxel.ChunkPos{}].At(0, 0, 15) != stone {
		t.Fatalf("lower chunk should be full")
	}
	mid := f.chunks[voxel.ChunkPos{Z: 1}]
	if mid.At(5, 5, 3) != stone || mid.At(5, 5, 4) != voxel.Air {
		t.Fatalf("mid chunk top wrong")
	}
	if !f.chunks[voxel.ChunkPos{Z: 2}].IsAir() {
		t.Fatalf("top chunk should be air")
	}
	if est := h.EstimateHeight(f, voxel.MapPos{}, voxel.UndefinedHeight); est != 2 {
		t.Fatalf("estimate = %d, want 2", est)
	}

	missing := Heightmap{Area: "nope", Material: stone}
	if err := missing.Generate(f, voxel.ChunkPos{}, voxel.NewChunk()); !errors.Is(err, terrain.ErrUnknownArea) {
		t.Fatalf("want ErrUnknownArea, got %v", err)
	}
}

func TestHeightmapAreaDeterministic(t *testing.T) {
	g := HeightmapArea{Seed: 3, Base: 10, Amplitude: 20, Cell: 32, Octaves: 2}
	a, _ := g.Generate(voxel.MapPos{X: 2, Y: -1})
	b, _ := g.Generate(voxel.MapPos{X: 2, Y: -1})
	if a.Values != b.Values {
		t.Fatalf("heightmap must be deterministic")
	}
	for _, v := range a.Values {
		if v < 10 || v > 30 {
			t.Fatalf("value %d out of [10,30]", v)
		}
	}
}

func TestBiomeArea(t *testing.T) {
	g := BiomeArea{Seed: 1, RegionSize: 16}
	a, _ := g.Generate(voxel.MapPos{X: 4, Y: 4})
	first := a.At(0, 0)
	for _, v := range a.Values {
		if v != first {
			t.Fatalf("one region per column expected")
		}
	}
	if Biome(first).String() == "unknown" {
		t.Fatalf("biome out of range: %d", first)
	}
}

func TestTreesAcrossChunks(t *testing.T) {
	stone, grass := block(t, "stone"), block(t, "grass")
	wood, leaves := block(t, "wood"), block(t, "leaves")
	f := newFakeAccess()
	trees := Trees{Seed: 11, Trunk: wood, Leaves: leaves, Ground: grass, Spacing: 6, Permille: 1000}
	gens := []terrain.Generator{
		Flat{Level: 5, Material: stone},
		Soil{Replace: stone, Layers: [][]voxel.Block{{grass}}},
		trees,
	}
	var ps []voxel.ChunkPos
	for y := -1; y <= 1; y++ {
		for x := -1; x <= 1; x++ {
			ps = append(ps, voxel.ChunkPos{X: x, Y: y, Z: -1}, voxel.ChunkPos{X: x, Y: y, Z: 0}, voxel.ChunkPos{X: x, Y: y, Z: 1})
		}
	}
	f.run(t, gens, ps...)

	c := f.chunks[voxel.ChunkPos{}]
	trunks := 0
	for i := 0; i < voxel.ChunkVolume; i++ {
		b := c.AtIndex(i)
		if b != wood {
			continue
		}
		trunks++
		l := voxel.LocalAt(i)
		if l.Z < 5 {
			t.Fatalf("trunk below the surface at %v", l)
		}
		if c.AtLocal(voxel.LocalPos{X: l.X, Y: l.Y, Z: 4}) != grass {
			t.Fatalf("trunk at %v is not rooted on grass", l)
		}
	}
	if trunks == 0 {
		t.Fatalf("expected trees with full density")
	}

	// Every site in the origin chunk's neighborhood must show its canopy
	// on whichever chunk holds the block above its trunk top.
	for gy := -3; gy <= 5; gy++ {
		for gx := -3; gx <= 5; gx++ {
			x, y, _ := trees.Site(gx, gy)
			if x < -16 || x >= 32 || y < -16 || y >= 32 {
				continue
			}
			w := voxel.WorldPos{X: x, Y: y, Z: 5}
			holder := f.chunks[w.Chunk()]
			if got := holder.AtLocal(w.Local()); got != wood {
				t.Fatalf("site (%d,%d) has no trunk: %d", x, y, got)
			}
		}
	}
}

func TestFactories(t *testing.T) {
	env := Env{Materials: catalogs.Default(), Seed: 5}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("level: 12\nmaterial: dirt\n"), &node); err != nil {
		t.Fatal(err)
	}
	g, err := Terrain("flat", node.Content[0], env)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	fl, ok := g.(Flat)
	if !ok || fl.Level != 12 || fl.Material != block(t, "dirt") {
		t.Fatalf("flat = %+v", g)
	}

	for _, name := range []string{"soil", "heightmap", "ores", "trees"} {
		if _, err := Terrain(name, nil, env); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := Terrain("volcano", nil, env); !errors.Is(err, ErrUnknownGenerator) {
		t.Fatalf("want ErrUnknownGenerator, got %v", err)
	}

	var bad yaml.Node
	if err := yaml.Unmarshal([]byte("material: unobtainium\n"), &bad); err != nil {
		t.Fatal(err)
	}
	if _, err := Terrain("flat", bad.Content[0], env); err == nil {
		t.Fatalf("unknown material must fail")
	}

	for _, name := range []string{"heightmap", "biome"} {
		if _, err := Area(name, nil, env); err != nil {
			t.Fatalf("area %s: %v", name, err)
		}
	}
	if _, err := Area("fixed", nil, env); err == nil {
		t.Fatalf("fixed area without kind must fail")
	}
}

func TestInClusterAndBiomes(t *testing.T) {
	if InCluster(1, 0, 0, 0, 3, 500) {
		t.Fatalf("zero grid must never match")
	}
	hits := 0
	for x := 0; x < 64; x++ {
		if InCluster(1, x, 0, 8, 3, 1000) {
			hits++
		}
	}
	if hits == 0 {
		t.Fatalf("full probability should produce clusters")
	}
	if ScalePermille(600, 2000) != 1000 || ScalePermille(300, 0) != 300 {
		t.Fatalf("ScalePermille wrong")
	}
	if !WithinClearing(3, 4, 5) || WithinClearing(4, 4, 5) {
		t.Fatalf("WithinClearing wrong")
	}
}
