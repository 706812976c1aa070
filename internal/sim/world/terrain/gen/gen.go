// Package gen holds the built-in terrain and area generators.
package gen

import "voxelworld.ai/internal/sim/world/logic/mathx"

type Biome int16

const (
	Plains Biome = iota
	Forest
	Desert
	biomeCount
)

var biomeNames = [...]string{"plains", "forest", "desert"}

func (b Biome) String() string {
	if b < 0 || b >= biomeCount {
		return "unknown"
	}
	return biomeNames[b]
}

func BiomeFrom(noise uint64) Biome {
	return Biome(noise % uint64(biomeCount))
}

// BiomeAt assigns one biome per square region of regionSize blocks.
func BiomeAt(seed int64, x, y, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	ry := mathx.FloorDiv(y, regionSize)
	return BiomeFrom(mathx.Hash2(seed, rx, ry))
}

// WithinClearing reports whether (x,y) lies inside a circle of radius
// around the world origin.
func WithinClearing(x, y, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dy := int64(y)
	return dx*dx+dy*dy <= r*r
}

func ClampPermille(v int) int {
	return mathx.Clamp(v, 0, 1000)
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// InCluster reports whether (x,y) falls inside one of the discs scattered
// over a grid. Each grid cell holds at most one disc, present with
// probability probPermille/1000.
func InCluster(seed int64, x, y, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gy := mathx.FloorDiv(y, grid)
	r2 := radius * radius

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgy := gy + dy
			h := mathx.Hash2(seed, cgx, cgy)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oy := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cy := cgy*grid + oy

			ddx := x - cx
			ddy := y - cy
			if ddx*ddx+ddy*ddy <= r2 {
				return true
			}
		}
	}
	return false
}
