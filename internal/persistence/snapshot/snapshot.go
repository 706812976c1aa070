// Package snapshot exports and imports regions of finished chunks.
//
// A snapshot file is zstd compressed. The first line is the JSON Header;
// every following line is one ChunkV1.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelworld.ai/internal/sim/encoding"
	"voxelworld.ai/internal/voxel"
)

const Version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

type Header struct {
	Version int            `json:"version"`
	Seed    int64          `json:"seed"`
	Phases  int            `json:"phases"`
	Created time.Time      `json:"created"`
	Min     voxel.ChunkPos `json:"min"`
	Max     voxel.ChunkPos `json:"max"`
}

type ChunkV1 struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Phase   int    `json:"phase"`
	Version uint32 `json:"version"`
	// Blocks is the RLE of the chunk's blocks, base64 encoded.
	Blocks string `json:"blocks"`
}

func (c ChunkV1) Pos() voxel.ChunkPos { return voxel.ChunkPos{X: c.X, Y: c.Y, Z: c.Z} }

// Chunk decodes the entry into a fresh, unpublished chunk.
func (c ChunkV1) Chunk() (*voxel.Chunk, error) {
	ids, err := encoding.DecodeRLE(c.Blocks, voxel.ChunkVolume)
	if err != nil {
		return nil, fmt.Errorf("chunk %v: %w", c.Pos(), err)
	}
	ch := voxel.NewChunk()
	copy(ch.Blocks()[:], ids)
	ch.SetVersion(c.Version)
	ch.SetPhase(c.Phase)
	return ch, nil
}

func EncodeChunk(pos voxel.ChunkPos, c *voxel.Chunk) ChunkV1 {
	return ChunkV1{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		Phase:   c.Phase(),
		Version: c.Version(),
		Blocks:  encoding.EncodeRLE(c.Blocks()[:]),
	}
}

// Writer streams a snapshot to disk.
type Writer struct {
	f   *os.File
	enc *zstd.Encoder
	bw  *bufio.Writer
	n   int
}

func Create(path string, h Header) (*Writer, error) {
	if h.Version == 0 {
		h.Version = Version
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{f: f, enc: enc, bw: bufio.NewWriterSize(enc, 256*1024)}
	if err := w.line(h); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) line(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

func (w *Writer) WriteChunk(pos voxel.ChunkPos, c *voxel.Chunk) error {
	if err := w.line(EncodeChunk(pos, c)); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count is the number of chunks written so far.
func (w *Writer) Count() int { return w.n }

func (w *Writer) Close() error {
	err := w.bw.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Read decodes the header, then calls fn for each chunk in file order.
func Read(path string, fn func(ChunkV1) error) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return h, err
		}
		return h, fmt.Errorf("snapshot: missing header")
	}
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	for sc.Scan() {
		var c ChunkV1
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return h, fmt.Errorf("snapshot chunk: %w", err)
		}
		if fn != nil {
			if err := fn(c); err != nil {
				return h, err
			}
		}
	}
	return h, sc.Err()
}

// Source is what Export reads chunks from.
type Source interface {
	GetChunk(pos voxel.ChunkPos) (*voxel.Chunk, error)
	Seed() int64
	Phases() int
}

// Sink is what Import hands decoded chunks to.
type Sink interface {
	ImportChunk(pos voxel.ChunkPos, c *voxel.Chunk) error
}

// Export writes every non-air chunk in the box [min, max] to path,
// generating missing ones. It returns the number of chunks written.
func Export(path string, src Source, min, max voxel.ChunkPos) (int, error) {
	if max.X < min.X || max.Y < min.Y || max.Z < min.Z {
		return 0, fmt.Errorf("snapshot: empty box %v..%v", min, max)
	}
	w, err := Create(path, Header{
		Seed:    src.Seed(),
		Phases:  src.Phases(),
		Created: time.Now().UTC(),
		Min:     min,
		Max:     max,
	})
	if err != nil {
		return 0, err
	}
	for z := min.Z; z <= max.Z; z++ {
		for y := min.Y; y <= max.Y; y++ {
			for x := min.X; x <= max.X; x++ {
				pos := voxel.ChunkPos{X: x, Y: y, Z: z}
				c, err := src.GetChunk(pos)
				if err != nil {
					_ = w.Close()
					return w.Count(), fmt.Errorf("export %v: %w", pos, err)
				}
				if c == voxel.AirChunk || c.IsAir() {
					continue
				}
				if err := w.WriteChunk(pos, c); err != nil {
					_ = w.Close()
					return w.Count(), err
				}
			}
		}
	}
	return w.Count(), w.Close()
}

// Import feeds every chunk in path to dst. It returns the header and the
// number of chunks imported before the first error.
func Import(path string, dst Sink) (Header, int, error) {
	n := 0
	h, err := Read(path, func(e ChunkV1) error {
		c, err := e.Chunk()
		if err != nil {
			return err
		}
		if err := dst.ImportChunk(e.Pos(), c); err != nil {
			return err
		}
		n++
		return nil
	})
	return h, n, err
}
