package voxel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voxelworld.ai/internal/sim/encoding"
)

const formatV1 = 1

var ErrCorrupt = errors.New("voxel: corrupt encoding")

func corrupt(what string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(what, args...))
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		r.err = corrupt("bad varint at %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b)-r.off < n {
		r.err = corrupt("short buffer: need %d at %d of %d", n, r.off, len(r.b))
		return nil
	}
	s := r.b[r.off : r.off+n]
	r.off += n
	return s
}

func (r *reader) header() {
	if v := r.next(1); v != nil && v[0] != formatV1 {
		r.err = corrupt("unknown format %d", v[0])
	}
}

func (r *reader) done() error {
	if r.err == nil && r.off != len(r.b) {
		r.err = corrupt("%d trailing bytes", len(r.b)-r.off)
	}
	return r.err
}

// MarshalChunk encodes phase, version and run-length encoded blocks.
func MarshalChunk(c *Chunk) []byte {
	b := make([]byte, 0, 64)
	b = append(b, formatV1)
	b = binary.AppendUvarint(b, uint64(c.Phase()))
	b = binary.AppendUvarint(b, uint64(c.Version()))
	return encoding.AppendRLE(b, c.blocks[:])
}

func UnmarshalChunk(data []byte) (*Chunk, error) {
	r := &reader{b: data}
	r.header()
	phase := r.uvarint()
	version := r.uvarint()
	if r.err != nil {
		return nil, r.err
	}
	c := NewChunk()
	n, err := encoding.ReadRLE(data[r.off:], c.blocks[:])
	if err != nil {
		return nil, corrupt("chunk blocks: %v", err)
	}
	r.off += n
	if err := r.done(); err != nil {
		return nil, err
	}
	c.phase.Store(uint32(phase))
	c.version = uint32(version)
	return c, nil
}

func MarshalArea(a *AreaData) []byte {
	b := make([]byte, 1, 1+2*ChunkArea)
	b[0] = formatV1
	for _, v := range a.Values {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func UnmarshalArea(data []byte) (*AreaData, error) {
	r := &reader{b: data}
	r.header()
	raw := r.next(2 * ChunkArea)
	if err := r.done(); err != nil {
		return nil, err
	}
	a := NewAreaData()
	for i := range a.Values {
		a.Values[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return a, nil
}

func packLocal(l LocalPos) uint16 {
	return uint16(l.X&0xf) | uint16(l.Y&0xf)<<4 | uint16(l.Z&0xf)<<8
}

func unpackLocal(v uint16) LocalPos {
	return LocalPos{int8(v & 0xf), int8((v >> 4) & 0xf), int8((v >> 8) & 0xf)}
}

func appendFaces(b []byte, fs []Faces) []byte {
	b = binary.AppendUvarint(b, uint64(len(fs)))
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint16(b, packLocal(f.Pos))
		b = append(b, f.Dirs)
		b = binary.LittleEndian.AppendUint16(b, f.Type)
	}
	return b
}

func (r *reader) faces() []Faces {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.b)-r.off)/5 {
		r.err = corrupt("face count %d exceeds buffer", n)
		return nil
	}
	if n == 0 {
		return nil
	}
	fs := make([]Faces, n)
	for i := range fs {
		raw := r.next(5)
		fs[i] = Faces{
			Pos:  unpackLocal(binary.LittleEndian.Uint16(raw)),
			Dirs: raw[2],
			Type: binary.LittleEndian.Uint16(raw[3:]),
		}
	}
	return fs
}

func MarshalSurface(s *Surface) []byte {
	b := make([]byte, 0, 8+5*(len(s.Opaque)+len(s.Transparent)))
	b = append(b, formatV1)
	b = binary.AppendUvarint(b, uint64(s.ChunkVersion))
	b = appendFaces(b, s.Opaque)
	return appendFaces(b, s.Transparent)
}

func UnmarshalSurface(data []byte) (*Surface, error) {
	r := &reader{b: data}
	r.header()
	s := &Surface{ChunkVersion: uint32(r.uvarint())}
	s.Opaque = r.faces()
	s.Transparent = r.faces()
	if err := r.done(); err != nil {
		return nil, err
	}
	return s, nil
}

func appendLights(b []byte, ls []Light) []byte {
	b = binary.AppendUvarint(b, uint64(len(ls)))
	for _, l := range ls {
		b = append(b, l.Sun, l.Ambient, l.Artificial, l.Secondary)
	}
	return b
}

func (r *reader) lights() []Light {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.b)-r.off)/4 {
		r.err = corrupt("light count %d exceeds buffer", n)
		return nil
	}
	if n == 0 {
		return nil
	}
	ls := make([]Light, n)
	for i := range ls {
		raw := r.next(4)
		ls[i] = Light{raw[0], raw[1], raw[2], raw[3]}
	}
	return ls
}

func MarshalLight(l *LightData) []byte {
	b := make([]byte, 0, 8+4*(len(l.Opaque)+len(l.Transparent)))
	b = append(b, formatV1)
	b = binary.AppendUvarint(b, uint64(l.Phase))
	b = appendLights(b, l.Opaque)
	return appendLights(b, l.Transparent)
}

func UnmarshalLight(data []byte) (*LightData, error) {
	r := &reader{b: data}
	r.header()
	l := &LightData{Phase: int(r.uvarint())}
	l.Opaque = r.lights()
	l.Transparent = r.lights()
	if err := r.done(); err != nil {
		return nil, err
	}
	return l, nil
}

func MarshalHeight(h Height) []byte {
	return binary.AppendVarint(nil, int64(h))
}

func UnmarshalHeight(data []byte) (Height, error) {
	v, n := binary.Varint(data)
	if n <= 0 || n != len(data) {
		return UndefinedHeight, corrupt("bad height")
	}
	return Height(v), nil
}
