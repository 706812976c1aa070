package voxel

import (
	"sync"
	"sync/atomic"
)

// Block is a material id. Zero is air.
type Block = uint16

const Air Block = 0

// Chunk is a dense 16³ block array.
//
// Chunks that have reached the final generation phase are published: they are
// never mutated in place again, writers clone them instead. The embedded
// mutex guards in-place mutation while a generator runs on an unpublished
// chunk and while the chunk is serialized.
type Chunk struct {
	sync.Mutex

	blocks  [ChunkVolume]Block
	version uint32
	phase   atomic.Uint32
	dirty   atomic.Bool
}

func NewChunk() *Chunk { return &Chunk{} }

// AirChunk is the shared all-air sentinel. It must not be modified.
var AirChunk = NewChunk()

func (c *Chunk) At(x, y, z int) Block     { return c.blocks[Index(x, y, z)] }
func (c *Chunk) AtIndex(i int) Block      { return c.blocks[i] }
func (c *Chunk) AtLocal(l LocalPos) Block { return c.blocks[l.Index()] }

func (c *Chunk) Set(x, y, z int, b Block) { c.blocks[Index(x, y, z)] = b }
func (c *Chunk) SetIndex(i int, b Block)  { c.blocks[i] = b }

// Blocks exposes the raw array for bulk reads and writes.
func (c *Chunk) Blocks() *[ChunkVolume]Block { return &c.blocks }

func (c *Chunk) Fill(b Block) {
	for i := range c.blocks {
		c.blocks[i] = b
	}
}

// IsAir reports whether every block is air.
func (c *Chunk) IsAir() bool {
	for _, b := range c.blocks {
		if b != Air {
			return false
		}
	}
	return true
}

func (c *Chunk) Version() uint32     { return c.version }
func (c *Chunk) SetVersion(v uint32) { c.version = v }

func (c *Chunk) Phase() int { return int(c.phase.Load()) }

// SetPhase records generation progress. Phases never move backwards.
func (c *Chunk) SetPhase(p int) {
	if p < c.Phase() {
		panic("voxel: chunk generation phase regressed")
	}
	c.phase.Store(uint32(p))
}

func (c *Chunk) IsDirty() bool   { return c.dirty.Load() }
func (c *Chunk) SetDirty(d bool) { c.dirty.Store(d) }

// Clone copies blocks, version and phase. The copy is clean and unlocked.
func (c *Chunk) Clone() *Chunk {
	n := &Chunk{blocks: c.blocks, version: c.version}
	n.phase.Store(c.phase.Load())
	return n
}

// Equal compares block contents only.
func (c *Chunk) Equal(o *Chunk) bool { return c.blocks == o.blocks }
