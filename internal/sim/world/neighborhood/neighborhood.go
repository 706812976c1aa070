// Package neighborhood gives block access across chunk boundaries around a
// center chunk.
package neighborhood

import (
	"fmt"

	"voxelworld.ai/internal/voxel"
)

// Source supplies complete chunks. A nil chunk means the position is air.
type Source interface {
	Chunk(pos voxel.ChunkPos) (*voxel.Chunk, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(pos voxel.ChunkPos) (*voxel.Chunk, error)

func (f SourceFunc) Chunk(pos voxel.ChunkPos) (*voxel.Chunk, error) { return f(pos) }

// Neighborhood caches the (2r+1)³ chunks around a center, fetching each on
// first use. Missing chunks read as air. It is not safe for concurrent use.
type Neighborhood struct {
	src    Source
	center voxel.ChunkPos
	radius int
	side   int
	cells  []*voxel.Chunk
	err    error
}

func New(src Source, center voxel.ChunkPos, radius int) *Neighborhood {
	if radius < 0 {
		radius = 0
	}
	side := 2*radius + 1
	return &Neighborhood{
		src:    src,
		center: center,
		radius: radius,
		side:   side,
		cells:  make([]*voxel.Chunk, side*side*side),
	}
}

func (n *Neighborhood) Center() voxel.ChunkPos { return n.center }
func (n *Neighborhood) Radius() int            { return n.radius }

// Err returns the first error reported by the source. Cells that failed
// read as air.
func (n *Neighborhood) Err() error { return n.err }

// Contains reports whether rel, relative to the center chunk's origin, lies
// inside the neighborhood.
func (n *Neighborhood) Contains(rel voxel.WorldPos) bool {
	lo, hi := -n.radius*voxel.ChunkSize, (n.radius+1)*voxel.ChunkSize
	return rel.X >= lo && rel.X < hi && rel.Y >= lo && rel.Y < hi && rel.Z >= lo && rel.Z < hi
}

// Chunk returns the chunk at offset off from the center, each component in
// [-r, r].
func (n *Neighborhood) Chunk(off voxel.ChunkPos) *voxel.Chunk {
	r := n.radius
	if off.X < -r || off.X > r || off.Y < -r || off.Y > r || off.Z < -r || off.Z > r {
		panic(fmt.Sprintf("neighborhood: offset %v outside radius %d", off, r))
	}
	i := (off.X + r) + n.side*((off.Y+r)+n.side*(off.Z+r))
	if c := n.cells[i]; c != nil {
		return c
	}
	c, err := n.src.Chunk(n.center.Add(off))
	if err != nil {
		if n.err == nil {
			n.err = fmt.Errorf("neighborhood %v: %w", n.center.Add(off), err)
		}
		c = nil
	}
	if c == nil {
		c = voxel.AirChunk
	}
	n.cells[i] = c
	return c
}

// Block reads the block at rel, relative to the center chunk's origin.
func (n *Neighborhood) Block(rel voxel.WorldPos) voxel.Block {
	c := n.Chunk(voxel.ChunkPos{X: rel.X >> 4, Y: rel.Y >> 4, Z: rel.Z >> 4})
	return c.At(rel.X&15, rel.Y&15, rel.Z&15)
}

// BlockAt reads a block given in world coordinates.
func (n *Neighborhood) BlockAt(w voxel.WorldPos) voxel.Block {
	return n.Block(w.Sub(n.center.Origin()))
}
