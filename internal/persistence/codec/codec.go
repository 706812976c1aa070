// Package codec compresses serialized world data for storage and transport.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a compression algorithm.
type Type uint8

const (
	None Type = 0
	LZ4  Type = 1
	Zstd Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(t))
}

// Parse maps a config name to a Type.
func Parse(name string) (Type, error) {
	switch name {
	case "none":
		return None, nil
	case "", "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return None, fmt.Errorf("unknown codec %q", name)
}

var ErrCorrupt = errors.New("codec: corrupt block")

// Block format: [type uint8][uncompressed uint32][compressed uint32][data].
// A compressed size of 0 means the data is stored raw.
const headerSize = 9

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

// EncodeAll and DecodeAll are safe for concurrent use.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder) {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		zstdDec, _ = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec
}

// Compress frames data with a header. Incompressible data is stored raw.
func (t Type) Compress(data []byte) ([]byte, error) {
	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		packed = buf[:n]
	case Zstd:
		enc, _ := zstdCoders()
		packed = enc.EncodeAll(data, nil)
	default:
		return nil, fmt.Errorf("compress: unsupported %v", t)
	}

	out := make([]byte, headerSize, headerSize+len(data))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	if len(packed) == 0 || len(packed) >= len(data) {
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[5:], uint32(len(packed)))
	return append(out, packed...), nil
}

// Decompress reads any block written by Compress, whatever its Type.
func Decompress(block []byte) ([]byte, error) {
	if len(block) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(block))
	}
	t := Type(block[0])
	size := binary.LittleEndian.Uint32(block[1:])
	packedSize := binary.LittleEndian.Uint32(block[5:])
	body := block[headerSize:]

	if packedSize == 0 {
		if uint32(len(body)) != size {
			return nil, fmt.Errorf("%w: raw body %d, header says %d", ErrCorrupt, len(body), size)
		}
		return body, nil
	}
	if uint32(len(body)) != packedSize {
		return nil, fmt.Errorf("%w: packed body %d, header says %d", ErrCorrupt, len(body), packedSize)
	}

	out := make([]byte, size)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: lz4 size mismatch", ErrCorrupt)
		}
		return out, nil
	case Zstd:
		_, dec := zstdCoders()
		got, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if uint32(len(got)) != size {
			return nil, fmt.Errorf("%w: zstd size mismatch", ErrCorrupt)
		}
		return got, nil
	}
	return nil, fmt.Errorf("%w: unknown type %d", ErrCorrupt, t)
}
