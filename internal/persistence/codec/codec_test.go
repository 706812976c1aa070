package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelworld.ai/internal/voxel"
)

func TestRoundTripAllTypes(t *testing.T) {
	compressible := bytes.Repeat([]byte("stone stone stone "), 200)
	random := make([]byte, 64)
	for i := range random {
		random[i] = byte(i*73 + 11)
	}

	for _, typ := range []Type{None, LZ4, Zstd} {
		for _, in := range [][]byte{nil, {1}, compressible, random} {
			block, err := typ.Compress(in)
			require.NoError(t, err, typ.String())
			out, err := Decompress(block)
			require.NoError(t, err, typ.String())
			assert.Equal(t, len(in), len(out), typ.String())
			assert.True(t, bytes.Equal(in, out), typ.String())
		}
	}
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	in := bytes.Repeat([]byte{7}, 4096)
	for _, typ := range []Type{LZ4, Zstd} {
		block, err := typ.Compress(in)
		require.NoError(t, err)
		assert.Less(t, len(block), len(in)/4, typ.String())
	}
}

func TestDecompressRejectsCorruption(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	block, err := LZ4.Compress(bytes.Repeat([]byte{1}, 1000))
	require.NoError(t, err)
	_, err = Decompress(block[:len(block)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParse(t *testing.T) {
	typ, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, LZ4, typ)
	typ, err = Parse("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, typ)
	_, err = Parse("brotli")
	assert.Error(t, err)
}

// Full pipeline for every data kind: serialize, compress, decompress, parse.
func TestVoxelPayloads(t *testing.T) {
	c := voxel.NewChunk()
	for z := 0; z < 5; z++ {
		for i := 0; i < voxel.ChunkArea; i++ {
			c.SetIndex(z*voxel.ChunkArea+i, 1)
		}
	}
	c.SetPhase(2)

	for _, typ := range []Type{LZ4, Zstd} {
		block, err := typ.Compress(voxel.MarshalChunk(c))
		require.NoError(t, err)
		raw, err := Decompress(block)
		require.NoError(t, err)
		got, err := voxel.UnmarshalChunk(raw)
		require.NoError(t, err)
		assert.True(t, got.Equal(c))
		assert.Equal(t, 2, got.Phase())

		a := voxel.NewAreaData()
		a.Fill(-12)
		block, err = typ.Compress(voxel.MarshalArea(a))
		require.NoError(t, err)
		raw, err = Decompress(block)
		require.NoError(t, err)
		gotA, err := voxel.UnmarshalArea(raw)
		require.NoError(t, err)
		assert.Equal(t, *a, *gotA)
	}
}
