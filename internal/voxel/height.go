package voxel

import (
	"math"

	"voxelworld.ai/internal/sim/world/logic/mathx"
)

// Height is a coarse column height expressed as a chunk z index: every chunk
// at or above it is air.
type Height int

// UndefinedHeight means nothing is known; the column may contain terrain at
// any height.
const UndefinedHeight Height = math.MinInt32

func (h Height) Defined() bool { return h != UndefinedHeight }

// IsAirChunk reports whether p is known to be air under coarse height h.
func IsAirChunk(p ChunkPos, h Height) bool {
	return h.Defined() && p.Z >= int(h)
}

// NeedsHeightAdjustment reports whether a non-air chunk at p breaks h.
func NeedsHeightAdjustment(p ChunkPos, h Height) bool {
	return !h.Defined() || p.Z >= int(h)
}

// MaxHeight returns the larger defined value.
func MaxHeight(a, b Height) Height {
	if !a.Defined() {
		return b
	}
	if !b.Defined() || a >= b {
		return a
	}
	return b
}

// HeightFromBlocks converts a block-level ceiling (first air z) to a chunk
// height.
func HeightFromBlocks(z int) Height {
	return Height(mathx.CeilDiv(z, ChunkSize))
}
