// Package storage defines the persistent store behind the memory cache.
package storage

import (
	"errors"
	"fmt"

	"voxelworld.ai/internal/voxel"
)

// Kind selects one of the five stored data kinds.
type Kind uint8

const (
	KindArea Kind = iota
	KindChunk
	KindSurface
	KindLight
	KindHeight
)

// Kinds lists every kind in flush order.
var Kinds = [...]Kind{KindArea, KindChunk, KindSurface, KindLight, KindHeight}

var kindNames = [...]string{"area", "chunk", "surface", "lightmap", "height"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ErrNotInStorage is returned by Retrieve when the key is absent. It is the
// signal to generate the data instead.
var ErrNotInStorage = errors.New("not in storage")

// Storage persists compressed blobs. Keys are chunk positions; heights use
// {X, Y, 0} and area data uses the area kind index as Z.
type Storage interface {
	Store(kind Kind, key voxel.ChunkPos, data []byte) error
	Retrieve(kind Kind, key voxel.ChunkPos) ([]byte, error)
	IsAvailable(kind Kind, key voxel.ChunkPos) (bool, error)

	// Begin and End bracket a batch of writes. Backends without
	// transactions treat them as no-ops.
	Begin() error
	End() error

	// Cleanup lets the backend flush internal buffers.
	Cleanup() error
	Close() error
}

// HeightKey maps a column to its storage key.
func HeightKey(col voxel.MapPos) voxel.ChunkPos { return voxel.ChunkPos{X: col.X, Y: col.Y} }

// WithTransaction runs fn between Begin and End. End always runs once
// Begin succeeded; fn's error wins.
func WithTransaction(s Storage, fn func() error) error {
	if err := s.Begin(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	err := fn()
	if endErr := s.End(); endErr != nil && err == nil {
		err = fmt.Errorf("end: %w", endErr)
	}
	return err
}

// NotFound builds the error backends return for a missing key.
func NotFound(kind Kind, key voxel.ChunkPos) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotInStorage)
}
