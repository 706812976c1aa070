// Package log writes the block change audit trail as hourly zstd JSONL
// files and reads it back for replay.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelworld.ai/internal/voxel"
)

const fileSuffix = ".jsonl.zst"

// JSONLZstdWriter appends one JSON document per line to a zstd file that is
// rotated every UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	// OnClose, if set, is called with the path of every file that was
	// closed by rotation or Close.
	OnClose func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	path := w.f.Name()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f, w.enc, w.w = nil, nil, nil
	if w.OnClose != nil {
		w.OnClose(path)
	}
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, hour, fileSuffix))
}

// BlockChange is one committed edit.
type BlockChange struct {
	Time    time.Time   `json:"time"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
	Z       int         `json:"z"`
	Old     voxel.Block `json:"old"`
	New     voxel.Block `json:"new"`
	OldName string      `json:"old_name,omitempty"`
	NewName string      `json:"new_name,omitempty"`
}

func (c BlockChange) Pos() voxel.WorldPos { return voxel.WorldPos{X: c.X, Y: c.Y, Z: c.Z} }

// AuditLogger records block changes under dir/audit-<hour>.jsonl.zst.
type AuditLogger struct {
	w     *JSONLZstdWriter
	names func(voxel.Block) string
}

// NewAuditLogger writes into dir. names, if non-nil, resolves material
// names stored next to the ids.
func NewAuditLogger(dir string, names func(voxel.Block) string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(dir, "audit"), names: names}
}

func (l *AuditLogger) Writer() *JSONLZstdWriter { return l.w }

func (l *AuditLogger) WriteBlockChange(p voxel.WorldPos, old, cur voxel.Block) error {
	e := BlockChange{Time: l.w.now().UTC(), X: p.X, Y: p.Y, Z: p.Z, Old: old, New: cur}
	if l.names != nil {
		e.OldName, e.NewName = l.names(old), l.names(cur)
	}
	return l.w.Write(e)
}

func (l *AuditLogger) Flush() error { return l.w.Flush() }
func (l *AuditLogger) Close() error { return l.w.Close() }

// ListFiles returns the audit files in dir in chronological order.
func ListFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile calls fn for every entry of an audit file, in order. It stops at
// the first error fn returns.
func ReadFile(path string, fn func(BlockChange) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e BlockChange
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
