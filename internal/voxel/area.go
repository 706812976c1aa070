package voxel

// AreaData holds one 16-bit value per block column of a chunk column.
type AreaData struct {
	Values [ChunkArea]int16
}

func NewAreaData() *AreaData { return &AreaData{} }

func (a *AreaData) At(x, y int) int16     { return a.Values[x+y*ChunkSize] }
func (a *AreaData) Set(x, y int, v int16) { a.Values[x+y*ChunkSize] = v }

func (a *AreaData) Fill(v int16) {
	for i := range a.Values {
		a.Values[i] = v
	}
}

func (a *AreaData) Max() int16 {
	m := a.Values[0]
	for _, v := range a.Values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (a *AreaData) Clone() *AreaData {
	n := *a
	return &n
}

// AreaKey stores area data of kind index idx under the chunk-keyed caches,
// reusing Z as the kind.
func AreaKey(col MapPos, idx int) ChunkPos { return ChunkPos{col.X, col.Y, idx} }
