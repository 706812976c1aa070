package world

import (
	"slices"
	"sync"

	"voxelworld.ai/internal/sim/world/logic/mathx"
	"voxelworld.ai/internal/voxel"
)

// DefaultLockShards is the size of the chunk lock table.
const DefaultLockShards = 4096

// lockTable maps chunk positions onto a fixed set of mutexes. Two positions
// may share a shard; that only costs concurrency.
type lockTable struct {
	shards []sync.Mutex
}

func newLockTable(n int) *lockTable {
	if n <= 0 {
		n = DefaultLockShards
	}
	return &lockTable{shards: make([]sync.Mutex, n)}
}

func (t *lockTable) shard(p voxel.ChunkPos) int {
	return int(mathx.Hash3(0, p.X, p.Y, p.Z) % uint64(len(t.shards)))
}

// RegionLock holds the shards of a set of chunks. Shards are always taken
// in ascending index order, so two regions never deadlock.
type RegionLock struct {
	t   *lockTable
	idx []int
}

func (t *lockTable) lock(ps ...voxel.ChunkPos) *RegionLock {
	idx := make([]int, 0, len(ps))
	for _, p := range ps {
		idx = append(idx, t.shard(p))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		t.shards[i].Lock()
	}
	return &RegionLock{t: t, idx: idx}
}

// Unlock releases the shards in reverse order. It is safe to call twice.
func (r *RegionLock) Unlock() {
	for i := len(r.idx) - 1; i >= 0; i-- {
		r.t.shards[r.idx[i]].Unlock()
	}
	r.idx = nil
}

// Shards returns the number of distinct shards held.
func (r *RegionLock) Shards() int { return len(r.idx) }
