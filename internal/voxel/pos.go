package voxel

import (
	"fmt"

	"voxelworld.ai/internal/sim/world/logic/mathx"
)

// ChunkSize is the edge length of a chunk in blocks.
const (
	ChunkSize   = 16
	ChunkArea   = ChunkSize * ChunkSize
	ChunkVolume = ChunkArea * ChunkSize
)

// ChunkPos addresses a chunk. Z is vertical.
type ChunkPos struct {
	X, Y, Z int
}

func (p ChunkPos) Add(o ChunkPos) ChunkPos { return ChunkPos{p.X + o.X, p.Y + o.Y, p.Z + o.Z} }
func (p ChunkPos) Sub(o ChunkPos) ChunkPos { return ChunkPos{p.X - o.X, p.Y - o.Y, p.Z - o.Z} }
func (p ChunkPos) Neg() ChunkPos           { return ChunkPos{-p.X, -p.Y, -p.Z} }
func (p ChunkPos) Column() MapPos          { return MapPos{p.X, p.Y} }

// Origin is the world position of the chunk's (0,0,0) block.
func (p ChunkPos) Origin() WorldPos {
	return WorldPos{p.X * ChunkSize, p.Y * ChunkSize, p.Z * ChunkSize}
}

// Less orders positions by z, then y, then x.
func (p ChunkPos) Less(o ChunkPos) bool {
	if p.Z != o.Z {
		return p.Z < o.Z
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.X < o.X
}

func (p ChunkPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// MapPos addresses a column of chunks.
type MapPos struct {
	X, Y int
}

func (m MapPos) String() string { return fmt.Sprintf("(%d,%d)", m.X, m.Y) }

// WorldPos addresses a single block in world coordinates.
type WorldPos struct {
	X, Y, Z int
}

func (w WorldPos) Add(o WorldPos) WorldPos { return WorldPos{w.X + o.X, w.Y + o.Y, w.Z + o.Z} }
func (w WorldPos) Sub(o WorldPos) WorldPos { return WorldPos{w.X - o.X, w.Y - o.Y, w.Z - o.Z} }

func (w WorldPos) Chunk() ChunkPos {
	return ChunkPos{
		mathx.FloorDiv(w.X, ChunkSize),
		mathx.FloorDiv(w.Y, ChunkSize),
		mathx.FloorDiv(w.Z, ChunkSize),
	}
}

func (w WorldPos) Local() LocalPos {
	return LocalPos{
		int8(mathx.Mod(w.X, ChunkSize)),
		int8(mathx.Mod(w.Y, ChunkSize)),
		int8(mathx.Mod(w.Z, ChunkSize)),
	}
}

func (w WorldPos) String() string { return fmt.Sprintf("(%d,%d,%d)", w.X, w.Y, w.Z) }

// LocalPos is a block position inside a chunk, each axis in [0,16).
type LocalPos struct {
	X, Y, Z int8
}

func (l LocalPos) Index() int { return Index(int(l.X), int(l.Y), int(l.Z)) }

func (l LocalPos) World(c ChunkPos) WorldPos {
	o := c.Origin()
	return WorldPos{o.X + int(l.X), o.Y + int(l.Y), o.Z + int(l.Z)}
}

// Index maps local coordinates to the block array offset.
func Index(x, y, z int) int { return x + y*ChunkSize + z*ChunkArea }

// LocalAt is the inverse of Index.
func LocalAt(i int) LocalPos {
	return LocalPos{int8(i % ChunkSize), int8((i / ChunkSize) % ChunkSize), int8(i / ChunkArea)}
}

// Direction is one of the six axis-aligned face directions.
type Direction uint8

const (
	East Direction = iota
	West
	North
	South
	Up
	Down
)

var dirNames = [6]string{"east", "west", "north", "south", "up", "down"}

var dirVectors = [6]WorldPos{
	{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
}

func (d Direction) Opposite() Direction { return d ^ 1 }
func (d Direction) Vector() WorldPos    { return dirVectors[d] }
func (d Direction) Bit() uint8          { return 1 << d }
func (d Direction) String() string      { return dirNames[d] }

// Directions lists all six directions in bit order.
var Directions = [6]Direction{East, West, North, South, Up, Down}

// AllFaces is the mask with every direction set.
const AllFaces uint8 = 0x3f
