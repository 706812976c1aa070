// Package terrain defines the generator plugins that build chunk contents.
package terrain

import (
	"errors"
	"slices"

	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/voxel"
)

// ErrUnknownArea is returned by generators that depend on an area kind no
// area generator provides.
var ErrUnknownArea = errors.New("unknown area kind")

// Accessor is what a generator may read while it runs.
type Accessor interface {
	// AreaData returns the area of kind index idx for col, generating it
	// when needed.
	AreaData(col voxel.MapPos, idx int) (*voxel.AreaData, error)
	// FindArea resolves an area kind name to its index, or -1.
	FindArea(name string) int
	// Chunk returns a neighbor inside the generator's span. Chunks known to
	// be air come back as voxel.AirChunk. ok is false outside the span.
	Chunk(pos voxel.ChunkPos) (c *voxel.Chunk, ok bool)
	Materials() *catalogs.Materials
	Seed() int64
}

// Generator fills or modifies one chunk per call. Generators run in
// registration order; generator k only sees chunks at phase k.
type Generator interface {
	Name() string
	// Generate modifies c in place. It may read neighbors listed by Span
	// through acc but must not write to them.
	Generate(acc Accessor, pos voxel.ChunkPos, c *voxel.Chunk) error
	// EstimateHeight refines prev, never returning a ceiling lower than
	// what Generate produces. UndefinedHeight means no opinion.
	EstimateHeight(acc Accessor, col voxel.MapPos, prev voxel.Height) voxel.Height
	// Span lists the relative chunk offsets Generate reads, including the
	// origin.
	Span() []voxel.ChunkPos
}

// AreaContributor is implemented by generators that also shape area data
// produced by an AreaGenerator, e.g. raising a height map.
type AreaContributor interface {
	AreaKinds() []string
	// GenerateArea adjusts a in place and reports whether it changed.
	GenerateArea(acc Accessor, kind string, col voxel.MapPos, a *voxel.AreaData) bool
}

// AreaGenerator owns one kind of area data.
type AreaGenerator interface {
	Name() string
	Generate(col voxel.MapPos) (*voxel.AreaData, error)
}

// Base supplies the defaults for Span and EstimateHeight.
type Base struct{}

var originSpan = []voxel.ChunkPos{{}}

func (Base) Span() []voxel.ChunkPos { return originSpan }

func (Base) EstimateHeight(Accessor, voxel.MapPos, voxel.Height) voxel.Height {
	return voxel.UndefinedHeight
}

// Region returns the chunk offsets that generating a chunk through every
// generator in gens may touch: the Minkowski sum of all spans together with
// their mirror images. The origin is always included.
func Region(gens []Generator) []voxel.ChunkPos {
	set := map[voxel.ChunkPos]struct{}{{}: {}}
	for _, g := range gens {
		next := make(map[voxel.ChunkPos]struct{}, len(set))
		for p := range set {
			for _, o := range g.Span() {
				next[p.Add(o)] = struct{}{}
				next[p.Sub(o)] = struct{}{}
			}
			next[p] = struct{}{}
		}
		set = next
	}
	out := make([]voxel.ChunkPos, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

// Targets computes, for each offset, the phase that chunk must reach before
// the chunk at the origin can reach len(gens). A target of 0 means the chunk
// is only read.
func Targets(gens []Generator) map[voxel.ChunkPos]int {
	n := len(gens)
	target := map[voxel.ChunkPos]int{{}: n}
	for k := n - 1; k >= 0; k-- {
		for p, t := range snapshot(target) {
			if t < k+1 {
				continue
			}
			for _, o := range gens[k].Span() {
				q := p.Add(o)
				if cur, ok := target[q]; !ok || cur < k {
					target[q] = k
				}
			}
		}
	}
	return target
}

func snapshot(m map[voxel.ChunkPos]int) map[voxel.ChunkPos]int {
	out := make(map[voxel.ChunkPos]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SortPositions orders positions with voxel.ChunkPos.Less.
func SortPositions(ps []voxel.ChunkPos) {
	slices.SortFunc(ps, func(a, b voxel.ChunkPos) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
}
