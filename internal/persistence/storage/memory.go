package storage

import (
	"fmt"
	"sync"

	"voxelworld.ai/internal/voxel"
)

type memKey struct {
	kind Kind
	key  voxel.ChunkPos
}

// Memory is a Storage kept entirely in process memory. It is used for
// ephemeral worlds and tests.
type Memory struct {
	mu     sync.RWMutex
	data   map[memKey][]byte
	closed bool

	depth int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[memKey][]byte)}
}

func (m *Memory) Store(kind Kind, key voxel.ChunkPos, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory storage: closed")
	}
	m.data[memKey{kind, key}] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Retrieve(kind Kind, key voxel.ChunkPos) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[memKey{kind, key}]
	if !ok {
		return nil, NotFound(kind, key)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) IsAvailable(kind Kind, key voxel.ChunkPos) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[memKey{kind, key}]
	return ok, nil
}

// Begin and End only track nesting depth.
func (m *Memory) Begin() error {
	m.mu.Lock()
	m.depth++
	m.mu.Unlock()
	return nil
}

func (m *Memory) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		return fmt.Errorf("memory storage: End without Begin")
	}
	m.depth--
	return nil
}

func (m *Memory) Cleanup() error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries of kind.
func (m *Memory) Len(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.data {
		if k.kind == kind {
			n++
		}
	}
	return n
}
