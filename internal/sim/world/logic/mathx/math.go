package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// CeilDiv rounds a/b towards positive infinity. b > 0.
func CeilDiv(a, b int) int {
	return -FloorDiv(-a, b)
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 hashes a map column.
func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0,1).
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

// ValueNoise2 is bilinear value noise over a lattice of the given cell size,
// returning [0,1).
func ValueNoise2(seed int64, x, y, cell int) float64 {
	if cell <= 1 {
		return Unit(Hash2(seed, x, y))
	}
	cx, cy := FloorDiv(x, cell), FloorDiv(y, cell)
	fx := float64(Mod(x, cell)) / float64(cell)
	fy := float64(Mod(y, cell)) / float64(cell)
	fx = fx * fx * (3 - 2*fx)
	fy = fy * fy * (3 - 2*fy)

	v00 := Unit(Hash2(seed, cx, cy))
	v10 := Unit(Hash2(seed, cx+1, cy))
	v01 := Unit(Hash2(seed, cx, cy+1))
	v11 := Unit(Hash2(seed, cx+1, cy+1))
	a := v00 + (v10-v00)*fx
	b := v01 + (v11-v01)*fx
	return a + (b-a)*fy
}
