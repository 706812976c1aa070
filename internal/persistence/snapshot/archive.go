package snapshot

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"voxelworld.ai/internal/voxel"
)

type ArchiveMeta struct {
	Seed     int64          `json:"seed"`
	Phases   int            `json:"phases"`
	Min      voxel.ChunkPos `json:"min"`
	Max      voxel.ChunkPos `json:"max"`
	Chunks   int            `json:"chunks"`
	Snapshot string         `json:"snapshot"`
	Created  string         `json:"created_at"`
}

// Archive copies a finished snapshot into dir/archives/<created>/ next to a
// meta.json describing it, and returns the archived file's path.
func Archive(dir, snapshotPath string) (string, error) {
	n := 0
	h, err := Read(snapshotPath, func(ChunkV1) error { n++; return nil })
	if err != nil {
		return "", err
	}
	archiveDir := filepath.Join(dir, "archives", h.Created.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}
	meta := ArchiveMeta{
		Seed:     h.Seed,
		Phases:   h.Phases,
		Min:      h.Min,
		Max:      h.Max,
		Chunks:   n,
		Snapshot: filepath.Base(dst),
		Created:  h.Created.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
