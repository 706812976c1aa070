package voxel

import "math/bits"

// Faces is one block with its visible face mask.
type Faces struct {
	Pos  LocalPos
	Dirs uint8
	Type Block
}

func (f Faces) Has(d Direction) bool { return f.Dirs&d.Bit() != 0 }

// Surface is the visible faces of a chunk.
type Surface struct {
	Opaque      []Faces
	Transparent []Faces
	// ChunkVersion is the version of the chunk the surface was built from.
	ChunkVersion uint32
}

func (s *Surface) IsEmpty() bool { return len(s.Opaque) == 0 && len(s.Transparent) == 0 }

// CountFaces sums the number of set direction bits.
func CountFaces(fs []Faces) int {
	n := 0
	for _, f := range fs {
		n += bits.OnesCount8(f.Dirs & AllFaces)
	}
	return n
}

// Light is the light reaching one face. Channels range over 0..15.
type Light struct {
	Sun        uint8
	Ambient    uint8
	Artificial uint8
	Secondary  uint8
}

// LightData is index-aligned with the faces of a Surface: one Light per set
// direction bit, in list order and ascending direction order per block.
type LightData struct {
	Opaque      []Light
	Transparent []Light
	Phase       int
}

// NewLightData sizes the arrays for s.
func NewLightData(s *Surface, phase int) *LightData {
	return &LightData{
		Opaque:      make([]Light, CountFaces(s.Opaque)),
		Transparent: make([]Light, CountFaces(s.Transparent)),
		Phase:       phase,
	}
}

func (l *LightData) IsEmpty() bool { return len(l.Opaque) == 0 && len(l.Transparent) == 0 }
