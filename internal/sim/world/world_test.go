package world

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voxelworld.ai/internal/memcache"
	"voxelworld.ai/internal/persistence/codec"
	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/light"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/sim/world/terrain/gen"
	"voxelworld.ai/internal/voxel"
)

type testWorld struct {
	*World
	store *storage.Memory
	stone voxel.Block
	grass voxel.Block
}

func newTestWorld(t *testing.T, gens ...terrain.Generator) *testWorld {
	t.Helper()
	mats := catalogs.Default()
	store := storage.NewMemory()
	w := New(Config{Seed: 1}, memcache.New(store, memcache.Options{}), mats, nil)
	for _, g := range gens {
		w.AddTerrainGenerator(g)
	}
	w.AddLightmapGenerator(light.Uniform{Sun: 15, Ambient: 2})
	stone, _ := mats.Find("stone")
	grass, _ := mats.Find("grass")
	return &testWorld{World: w, store: store, stone: stone, grass: grass}
}

func flatSoil(t *testing.T) *testWorld {
	mats := catalogs.Default()
	stone, _ := mats.Find("stone")
	grass, _ := mats.Find("grass")
	return newTestWorld(t,
		gen.Flat{Level: 5, Material: stone},
		gen.Soil{Replace: stone, Layers: [][]voxel.Block{{grass}}},
	)
}

// layer fills every chunk whose z equals Z and has no height estimate.
type layer struct {
	terrain.Base
	Z     int
	Block voxel.Block
}

func (layer) Name() string { return "layer" }

func (l layer) Generate(_ terrain.Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error {
	if pos.Z == l.Z {
		c.Fill(l.Block)
	}
	return nil
}

// broken writes garbage and then fails.
type broken struct{ terrain.Base }

func (broken) Name() string { return "broken" }

func (broken) Generate(_ terrain.Accessor, _ voxel.ChunkPos, c *voxel.Chunk) error {
	c.Set(1, 1, 1, 1)
	return errors.New("boom")
}

func TestGenerateFlatSoil(t *testing.T) {
	w := flatSoil(t)
	c, err := w.GetChunk(voxel.ChunkPos{})
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if c.Phase() != 2 {
		t.Fatalf("phase = %d, want 2", c.Phase())
	}
	for z := 0; z < voxel.ChunkSize; z++ {
		want := voxel.Air
		switch {
		case z < 4:
			want = w.stone
		case z == 4:
			want = w.grass
		}
		if got := c.At(7, 9, z); got != want {
			t.Fatalf("z=%d: got %d want %d", z, got, want)
		}
	}

	h, err := w.CoarseHeight(voxel.MapPos{})
	if err != nil || h != 1 {
		t.Fatalf("coarse height = %d, %v; want 1", h, err)
	}
	above, err := w.GetChunk(voxel.ChunkPos{Z: 3})
	if err != nil || above != voxel.AirChunk {
		t.Fatalf("chunk above the height should be the air sentinel: %v %v", above, err)
	}
	b, err := w.Block(voxel.WorldPos{X: -3, Y: 40, Z: 4})
	if err != nil || b != w.grass {
		t.Fatalf("Block = %d, %v", b, err)
	}
}

func TestPhasesStayWithinPipeline(t *testing.T) {
	w := flatSoil(t)
	if _, err := w.GetChunk(voxel.ChunkPos{X: 2, Y: -1}); err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	for _, off := range w.Region() {
		c, ok := w.cache.PeekChunk(voxel.ChunkPos{X: 2, Y: -1}.Add(off))
		if !ok {
			continue
		}
		if c.Phase() > w.Phases() {
			t.Fatalf("chunk %v at phase %d beyond %d", off, c.Phase(), w.Phases())
		}
	}
	above, _ := w.cache.PeekChunk(voxel.ChunkPos{X: 2, Y: -1, Z: 1})
	if above == nil || above.Phase() != 1 {
		t.Fatalf("chunk read by soil should be at phase 1, got %v", above)
	}
}

func TestGetIsIdempotent(t *testing.T) {
	w := flatSoil(t)
	pos := voxel.ChunkPos{X: 1}
	c1, err := w.GetChunk(pos)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := w.GetSurface(pos)
	if err != nil {
		t.Fatal(err)
	}
	l1, err := w.GetLightmap(pos)
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := w.GetChunk(pos)
	s2, _ := w.GetSurface(pos)
	l2, _ := w.GetLightmap(pos)
	if c1 != c2 || c1.Version() != c2.Version() {
		t.Fatalf("chunk changed between reads")
	}
	if string(voxel.MarshalSurface(s1)) != string(voxel.MarshalSurface(s2)) {
		t.Fatalf("surface changed between reads")
	}
	if string(voxel.MarshalLight(l1)) != string(voxel.MarshalLight(l2)) {
		t.Fatalf("lightmap changed between reads")
	}
}

func TestLightmapAlignsWithSurface(t *testing.T) {
	w := flatSoil(t)
	pos := voxel.ChunkPos{}
	s, err := w.GetSurface(pos)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsEmpty() {
		t.Fatalf("grass layer should have faces")
	}
	l, err := w.GetLightmap(pos)
	if err != nil {
		t.Fatal(err)
	}
	if voxel.CountFaces(s.Opaque) != len(l.Opaque) || voxel.CountFaces(s.Transparent) != len(l.Transparent) {
		t.Fatalf("light arrays not aligned with faces")
	}
	// A flat world only shows the top of the grass layer.
	if voxel.CountFaces(s.Opaque) != voxel.ChunkArea {
		t.Fatalf("faces = %d, want %d", voxel.CountFaces(s.Opaque), voxel.ChunkArea)
	}
	for _, f := range s.Opaque {
		if f.Dirs != voxel.Up.Bit() || f.Type != w.grass {
			t.Fatalf("unexpected face %+v", f)
		}
	}
}

func TestChangeBlockAtBoundary(t *testing.T) {
	w := flatSoil(t)
	var changes, surfaces int
	w.SetHooks(Hooks{
		OnBlockChange: func(_ voxel.WorldPos, old, cur voxel.Block) {
			if old != w.stone || cur != voxel.Air {
				t.Errorf("change %d -> %d", old, cur)
			}
			changes++
		},
		OnSurface: func(voxel.ChunkPos) { surfaces++ },
	})
	if _, err := w.GetSurface(voxel.ChunkPos{X: -1}); err != nil {
		t.Fatal(err)
	}
	before, _ := w.GetChunk(voxel.ChunkPos{})
	v := before.Version()

	got, err := w.ChangeBlock(voxel.WorldPos{X: 0, Y: 5, Z: 3}, voxel.Air)
	if err != nil {
		t.Fatalf("ChangeBlock: %v", err)
	}
	if len(got) != 2 || got[0] != (voxel.ChunkPos{}) || got[1] != (voxel.ChunkPos{X: -1}) {
		t.Fatalf("regenerated %v", got)
	}
	if changes != 1 || surfaces != 2 {
		t.Fatalf("hooks: %d changes, %d surfaces", changes, surfaces)
	}

	after, _ := w.GetChunk(voxel.ChunkPos{})
	if after == before || after.Version() != v+1 || before.At(0, 5, 3) != w.stone {
		t.Fatalf("published chunk was modified in place")
	}
	if after.At(0, 5, 3) != voxel.Air {
		t.Fatalf("block not changed")
	}

	s, err := w.GetSurface(voxel.ChunkPos{X: -1})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range s.Opaque {
		if f.Pos == (voxel.LocalPos{X: 15, Y: 5, Z: 3}) && f.Has(voxel.East) {
			found = true
		}
	}
	if !found {
		t.Fatalf("neighbor surface lacks the newly exposed east face")
	}

	again, err := w.ChangeBlock(voxel.WorldPos{X: 0, Y: 5, Z: 3}, voxel.Air)
	if err != nil || again != nil || changes != 1 {
		t.Fatalf("no-op change should do nothing: %v %v", again, err)
	}
	if _, err := w.ChangeBlock(voxel.WorldPos{}, voxel.Block(9999)); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("want ErrUnknownBlock, got %v", err)
	}
}

func TestCoarseHeight(t *testing.T) {
	mats := catalogs.Default()
	stone, _ := mats.Find("stone")
	w := newTestWorld(t, layer{Z: 3, Block: stone})
	var pushed []voxel.Height
	w.SetHooks(Hooks{OnHeight: func(_ voxel.MapPos, h voxel.Height) { pushed = append(pushed, h) }})

	col := voxel.MapPos{}
	if h, _ := w.CoarseHeight(col); h.Defined() {
		t.Fatalf("height should start undefined, got %d", h)
	}
	if _, err := w.GetChunk(voxel.ChunkPos{Z: 3}); err != nil {
		t.Fatal(err)
	}
	if h, _ := w.CoarseHeight(col); h != 4 {
		t.Fatalf("height = %d, want 4", h)
	}

	top := voxel.WorldPos{X: 1, Y: 1, Z: 10 * voxel.ChunkSize}
	if _, err := w.ChangeBlock(top, stone); err != nil {
		t.Fatal(err)
	}
	if h, _ := w.CoarseHeight(col); h != 11 {
		t.Fatalf("height = %d, want 11", h)
	}
	changes := w.DrainHeightChanges()
	if changes[col] != 11 || len(w.DrainHeightChanges()) != 0 {
		t.Fatalf("height changes = %v", changes)
	}

	if _, err := w.ChangeBlock(top, voxel.Air); err != nil {
		t.Fatal(err)
	}
	if h, _ := w.CoarseHeight(col); h != 10 {
		t.Fatalf("height = %d, want 10 after clearing the top chunk", h)
	}
	if len(pushed) != 3 || pushed[0] != 4 || pushed[1] != 11 || pushed[2] != 10 {
		t.Fatalf("OnHeight saw %v", pushed)
	}
}

func TestFailedGeneratorLeavesChunk(t *testing.T) {
	w := newTestWorld(t, broken{})
	if _, err := w.GetChunk(voxel.ChunkPos{}); err == nil {
		t.Fatalf("expected generator error")
	}
	c, ok := w.cache.PeekChunk(voxel.ChunkPos{})
	if !ok {
		t.Fatalf("chunk should stay cached")
	}
	if c.Phase() != 0 || !c.IsAir() {
		t.Fatalf("chunk not restored: phase %d", c.Phase())
	}
}

func TestRefineLightmap(t *testing.T) {
	w := flatSoil(t)
	w.AddLightmapGenerator(light.Sun{Ambient: 1})
	pos := voxel.ChunkPos{}
	l, err := w.GetLightmap(pos)
	if err != nil || l.Phase != 0 {
		t.Fatalf("lightmap phase %v, %v", l, err)
	}
	l2, more, err := w.RefineLightmap(pos)
	if err != nil || !more || l2.Phase != 1 {
		t.Fatalf("refine: %v %v %v", l2, more, err)
	}
	l3, more, err := w.RefineLightmap(pos)
	if err != nil || more || l3.Phase != 1 {
		t.Fatalf("refine past the last phase: %v %v %v", l3, more, err)
	}
	if l3.Opaque[0].Sun != 15 {
		t.Fatalf("open grass should be sunlit: %+v", l3.Opaque[0])
	}
}

func TestImportChunk(t *testing.T) {
	w := flatSoil(t)
	c := voxel.NewChunk()
	c.Set(3, 3, 3, w.stone)
	pos := voxel.ChunkPos{X: 5, Z: 6}
	if err := w.ImportChunk(pos, c); err != nil {
		t.Fatal(err)
	}
	got, err := w.GetChunk(pos)
	if err != nil || got.At(3, 3, 3) != w.stone || got.Phase() != 2 {
		t.Fatalf("imported chunk not visible: %v", err)
	}
	if h, _ := w.CoarseHeight(pos.Column()); h != 7 {
		t.Fatalf("height = %d, want 7", h)
	}
	s, err := w.GetSurface(pos)
	if err != nil || voxel.CountFaces(s.Opaque) != 6 {
		t.Fatalf("imported surface: %v", err)
	}
}

func TestCompressedAndCleanup(t *testing.T) {
	w := flatSoil(t)
	pos := voxel.ChunkPos{}
	raw, err := w.CompressedSurface(pos)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := codec.Decompress(raw)
	if err != nil {
		t.Fatal(err)
	}
	s, err := voxel.UnmarshalSurface(plain)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := w.GetSurface(pos)
	if voxel.CountFaces(s.Opaque) != voxel.CountFaces(want.Opaque) {
		t.Fatalf("compressed surface differs")
	}
	if _, err := w.CompressedLightmap(pos); err != nil {
		t.Fatal(err)
	}
	if _, err := w.CompressedChunk(voxel.ChunkPos{Z: 9}); !errors.Is(err, memcache.ErrEmpty) {
		t.Fatalf("sky chunk: %v", err)
	}

	if err := w.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if w.store.Len(storage.KindChunk) == 0 || w.store.Len(storage.KindSurface) == 0 || w.store.Len(storage.KindHeight) == 0 {
		t.Fatalf("cleanup did not flush")
	}
	for _, st := range w.cache.Stats() {
		if st.Dirty != 0 {
			t.Fatalf("%s still dirty after cleanup", st.Kind)
		}
	}
}

func TestWorkersDrainBeforeStop(t *testing.T) {
	w := flatSoil(t)
	w.Start(3)
	var done atomic.Int32
	var failed atomic.Int32
	for i := 0; i < 30; i++ {
		r := Request{
			Kind: RequestKind(i % 4),
			Pos:  voxel.ChunkPos{X: i % 5, Y: i / 5},
			Done: func(err error) {
				if err != nil {
					failed.Add(1)
				}
				done.Add(1)
			},
		}
		if err := w.Submit(r); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if done.Load() != 30 || failed.Load() != 0 {
		t.Fatalf("done=%d failed=%d", done.Load(), failed.Load())
	}
	if err := w.Submit(Request{Kind: RequestChunk}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Stop: %v", err)
	}
}

func TestConcurrentGenerationMatchesSerial(t *testing.T) {
	mats := catalogs.Default()
	stone, _ := mats.Find("stone")
	grass, _ := mats.Find("grass")
	wood, _ := mats.Find("wood")
	leaves, _ := mats.Find("leaves")
	gens := func() []terrain.Generator {
		return []terrain.Generator{
			gen.Flat{Level: 5, Material: stone},
			gen.Soil{Replace: stone, Layers: [][]voxel.Block{{grass}}},
			gen.Trees{Seed: 4, Trunk: wood, Leaves: leaves, Ground: grass, Spacing: 5, Permille: 800},
		}
	}
	var ps []voxel.ChunkPos
	for y := -2; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			ps = append(ps, voxel.ChunkPos{X: x, Y: y})
		}
	}

	serial := newTestWorld(t, gens()...)
	for _, p := range ps {
		if _, err := serial.GetChunk(p); err != nil {
			t.Fatal(err)
		}
	}

	parallel := newTestWorld(t, gens()...)
	var wg sync.WaitGroup
	errs := make(chan error, 4*len(ps))
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range ps {
				p := ps[(i*7+g*3)%len(ps)]
				if _, err := parallel.GetSurface(p); err != nil {
					errs <- err
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	for _, p := range ps {
		a, _ := serial.GetChunk(p)
		b, _ := parallel.GetChunk(p)
		if !a.Equal(b) {
			t.Fatalf("chunk %v differs between serial and concurrent generation", p)
		}
	}
}

func TestRegionLockDedupesShards(t *testing.T) {
	lt := newLockTable(1)
	r := lt.lock(voxel.ChunkPos{}, voxel.ChunkPos{X: 1}, voxel.ChunkPos{X: 2})
	if r.Shards() != 1 {
		t.Fatalf("shards = %d, want 1", r.Shards())
	}
	r.Unlock()
	r.Unlock()

	lt = newLockTable(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				a := voxel.ChunkPos{X: i % 7, Y: g}
				b := voxel.ChunkPos{X: -g, Y: i % 5, Z: 1}
				if g%2 == 0 {
					a, b = b, a
				}
				lt.lock(a, b).Unlock()
			}
		}(g)
	}
	wg.Wait()
}

func TestStopWithChainedSubmit(t *testing.T) {
	w := flatSoil(t)
	w.cfg.QueueSize = 1
	w.Start(1)

	started := make(chan struct{})
	release := make(chan struct{})
	chained := make(chan error, 1)
	first := Request{Kind: RequestSurface, Done: func(error) {
		close(started)
		<-release
		chained <- w.Submit(Request{Kind: RequestLightmap})
	}}
	if err := w.Submit(first); err != nil {
		t.Fatal(err)
	}
	<-started
	var secondDone atomic.Bool
	if err := w.Submit(Request{Kind: RequestChunk, Pos: voxel.ChunkPos{X: 1}, Done: func(error) { secondDone.Store(true) }}); err != nil {
		t.Fatal(err)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	close(release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop hung while a Done callback submitted")
	}
	if err := <-chained; !errors.Is(err, ErrStopped) {
		t.Fatalf("chained Submit = %v, want ErrStopped", err)
	}
	if !secondDone.Load() {
		t.Fatalf("queued request was not served before stopping")
	}
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	w := flatSoil(t)
	w.cfg.QueueSize = 1
	w.Start(1)

	started := make(chan struct{})
	release := make(chan struct{})
	if err := w.Submit(Request{Kind: RequestChunk, Done: func(error) {
		close(started)
		<-release
	}}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := w.TrySubmit(Request{Kind: RequestChunk}); err != nil {
		t.Fatalf("TrySubmit into a free slot: %v", err)
	}
	if err := w.TrySubmit(Request{Kind: RequestChunk}); !errors.Is(err, ErrBusy) {
		t.Fatalf("TrySubmit on a full queue = %v, want ErrBusy", err)
	}
	close(release)
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.TrySubmit(Request{Kind: RequestChunk}); !errors.Is(err, ErrStopped) {
		t.Fatalf("TrySubmit after Stop = %v", err)
	}
}

func TestHeightRaisedBeforeFinalPhase(t *testing.T) {
	mats := catalogs.Default()
	stone, _ := mats.Find("stone")
	w := newTestWorld(t, layer{Z: 3, Block: stone})
	pos := voxel.ChunkPos{Z: 3}
	phaseAtRaise := -1
	w.SetHooks(Hooks{OnHeight: func(voxel.MapPos, voxel.Height) {
		if c, ok := w.cache.PeekChunk(pos); ok {
			phaseAtRaise = c.Phase()
		}
	}})

	c, err := w.GetChunk(pos)
	if err != nil {
		t.Fatal(err)
	}
	if phaseAtRaise != 0 {
		t.Fatalf("chunk was at phase %d when the height rose, want 0", phaseAtRaise)
	}
	if c.Phase() != w.Phases() {
		t.Fatalf("phase = %d", c.Phase())
	}
	if h, _ := w.CoarseHeight(pos.Column()); h != 4 {
		t.Fatalf("height = %d, want 4", h)
	}
}

// editingLight changes a block the first time it computes phase 1.
type editingLight struct {
	light.Uniform
	once *sync.Once
	edit func()
}

func (editingLight) Phases() int { return 2 }

func (e editingLight) Generate(acc light.Accessor, pos voxel.ChunkPos, faces []voxel.Faces, out []voxel.Light, phase int) error {
	if phase == 1 {
		e.once.Do(e.edit)
	}
	return e.Uniform.Generate(acc, pos, faces, out, phase)
}

func TestRefineLightmapYieldsToNewerSurface(t *testing.T) {
	w := flatSoil(t)
	pos := voxel.ChunkPos{}
	var editErr error
	w.AddLightmapGenerator(editingLight{
		Uniform: light.Uniform{Sun: 10},
		once:    new(sync.Once),
		edit: func() {
			_, editErr = w.ChangeBlock(voxel.WorldPos{X: 4, Y: 4, Z: 10}, w.stone)
		},
	})
	if _, err := w.GetLightmap(pos); err != nil {
		t.Fatal(err)
	}

	l, more, err := w.RefineLightmap(pos)
	if err != nil || editErr != nil {
		t.Fatalf("refine: %v, edit: %v", err, editErr)
	}
	if !more || l.Phase != 1 {
		t.Fatalf("refine returned phase %d, more=%v", l.Phase, more)
	}
	s, err := w.GetSurface(pos)
	if err != nil {
		t.Fatal(err)
	}
	cached, err := w.cache.GetLight(pos)
	if err != nil || cached == nil {
		t.Fatalf("cached light: %v", err)
	}
	if !fits(s, cached) || !fits(s, l) {
		t.Fatalf("light does not match the edited surface: %d faces, %d lights",
			voxel.CountFaces(s.Opaque), len(cached.Opaque))
	}
	if cached.Phase != 1 {
		t.Fatalf("cached phase = %d", cached.Phase)
	}
}
