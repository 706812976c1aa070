package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// AppendRLE appends (block_id, run_len) uvarint pairs for ids to dst.
func AppendRLE(dst []byte, ids []uint16) []byte {
	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}
		dst = binary.AppendUvarint(dst, uint64(b))
		dst = binary.AppendUvarint(dst, uint64(run))
		i += run
	}
	return dst
}

// ReadRLE decodes pairs from raw into out, which must be exactly filled.
// It returns the number of bytes consumed.
func ReadRLE(raw []byte, out []uint16) (int, error) {
	i, k := 0, 0
	for k < len(out) {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return i, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return i, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return i, fmt.Errorf("block id too large: %d", b)
		}
		if run == 0 || run > uint64(len(out)-k) {
			return i, fmt.Errorf("run of %d overflows %d remaining", run, len(out)-k)
		}
		for end := k + int(run); k < end; k++ {
			out[k] = uint16(b)
		}
	}
	return i, nil
}

// EncodeRLE is AppendRLE wrapped in base64, for text formats.
func EncodeRLE(ids []uint16) string {
	return base64.StdEncoding.EncodeToString(AppendRLE(nil, ids))
}

func DecodeRLE(b64 string, n int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	used, err := ReadRLE(raw, out)
	if err != nil {
		return nil, err
	}
	if used != len(raw) {
		return nil, fmt.Errorf("trailing %d bytes after %d ids", len(raw)-used, n)
	}
	return out, nil
}
