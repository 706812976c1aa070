package memcache

import (
	"errors"
	"fmt"
	"sync"

	"voxelworld.ai/internal/lru"
	"voxelworld.ai/internal/persistence/codec"
	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/voxel"
)

// kindCache is the LRU, dirty set and lock for one data kind.
type kindCache[K comparable, V any] struct {
	kind  storage.Kind
	store storage.Storage
	codec codec.Type

	encode  func(V) []byte
	decode  func([]byte) (V, error)
	storeAt func(K) voxel.ChunkPos
	isNil   func(V) bool
	// onWrite runs after v has been written to storage.
	onWrite func(V)

	mu    sync.Mutex
	lru   *lru.Cache[K, V]
	dirty map[K]struct{}
}

func (kc *kindCache[K, V]) put(k K, v V) {
	if kc.isNil(v) {
		panic(fmt.Sprintf("memcache: storing a nil %s at %v", kc.kind, k))
	}
	kc.mu.Lock()
	kc.lru.Put(k, v)
	kc.dirty[k] = struct{}{}
	kc.mu.Unlock()
}

func (kc *kindCache[K, V]) peek(k K) (V, bool) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.lru.Peek(k)
}

func (kc *kindCache[K, V]) isAvailable(k K) (bool, error) {
	kc.mu.Lock()
	hit := kc.lru.Count(k) > 0
	kc.mu.Unlock()
	if hit {
		return true, nil
	}
	return kc.store.IsAvailable(kc.kind, kc.storeAt(k))
}

// load reads k from storage. ok is false when storage does not have it.
func (kc *kindCache[K, V]) load(k K) (v V, ok bool, err error) {
	block, err := kc.store.Retrieve(kc.kind, kc.storeAt(k))
	if errors.Is(err, storage.ErrNotInStorage) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	raw, err := codec.Decompress(block)
	if err != nil {
		return v, false, fmt.Errorf("%s %v: %w", kc.kind, k, err)
	}
	v, err = kc.decode(raw)
	if err != nil {
		return v, false, fmt.Errorf("%s %v: %w", kc.kind, k, err)
	}
	return v, true, nil
}

// get returns the cached value, falling back to storage. Values loaded from
// storage enter the cache clean. ok is false when neither has k.
func (kc *kindCache[K, V]) get(k K) (V, bool, error) {
	kc.mu.Lock()
	if v, hit := kc.lru.TryGet(k); hit {
		kc.mu.Unlock()
		return v, true, nil
	}
	kc.mu.Unlock()

	v, ok, err := kc.load(k)
	if err != nil || !ok {
		return v, false, err
	}

	kc.mu.Lock()
	defer kc.mu.Unlock()
	// Someone may have stored a newer value while we were reading.
	if cur, hit := kc.lru.TryGet(k); hit {
		return cur, true, nil
	}
	kc.lru.Put(k, v)
	return v, true, nil
}

// loadOrStore is get, inserting fresh() as a dirty entry when k exists
// nowhere.
func (kc *kindCache[K, V]) loadOrStore(k K, fresh func() V) (V, error) {
	v, ok, err := kc.get(k)
	if err != nil || ok {
		return v, err
	}
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if cur, hit := kc.lru.TryGet(k); hit {
		return cur, nil
	}
	v = fresh()
	kc.lru.Put(k, v)
	kc.dirty[k] = struct{}{}
	return v, nil
}

func (kc *kindCache[K, V]) remove(k K) {
	kc.mu.Lock()
	kc.lru.Remove(k)
	delete(kc.dirty, k)
	kc.mu.Unlock()
}

// writeLocked encodes, compresses and stores v. Callers hold mu.
func (kc *kindCache[K, V]) writeLocked(k K, v V) ([]byte, error) {
	block, err := kc.codec.Compress(kc.encode(v))
	if err != nil {
		return nil, fmt.Errorf("compress %s %v: %w", kc.kind, k, err)
	}
	if err := kc.store.Store(kc.kind, kc.storeAt(k), block); err != nil {
		return nil, err
	}
	if kc.onWrite != nil {
		kc.onWrite(v)
	}
	return block, nil
}

// flush writes every dirty entry, then prunes to limit. A failed write keeps
// the remaining keys dirty and skips the prune.
func (kc *kindCache[K, V]) flush(limit int) (KindStats, error) {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	st := KindStats{Kind: kc.kind}
	for k := range kc.dirty {
		v, ok := kc.lru.Peek(k)
		if ok {
			if _, err := kc.writeLocked(k, v); err != nil {
				st.Size = kc.lru.Len()
				st.Dirty = len(kc.dirty)
				return st, err
			}
			st.Flushed++
		}
		delete(kc.dirty, k)
	}
	st.Evicted = kc.lru.PruneFunc(limit, func(k K, _ V) {
		delete(kc.dirty, k)
	})
	st.Size = kc.lru.Len()
	return st, nil
}

// trimClean evicts clean entries only, oldest first.
func (kc *kindCache[K, V]) trimClean(limit int) int {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.lru.PruneIf(limit, func(k K, _ V) bool {
		_, dirty := kc.dirty[k]
		return !dirty
	})
}

// compressed returns storage-ready bytes for k. A dirty cached entry is
// written through first so storage and the returned bytes agree.
func (kc *kindCache[K, V]) compressed(k K) ([]byte, V, error) {
	kc.mu.Lock()
	if v, hit := kc.lru.TryGet(k); hit {
		defer kc.mu.Unlock()
		if _, dirty := kc.dirty[k]; dirty {
			block, err := kc.writeLocked(k, v)
			if err != nil {
				return nil, v, err
			}
			delete(kc.dirty, k)
			return block, v, nil
		}
		block, err := kc.codec.Compress(kc.encode(v))
		return block, v, err
	}
	kc.mu.Unlock()

	var zero V
	block, err := kc.store.Retrieve(kc.kind, kc.storeAt(k))
	if err != nil {
		return nil, zero, err
	}
	raw, err := codec.Decompress(block)
	if err != nil {
		return nil, zero, fmt.Errorf("%s %v: %w", kc.kind, k, err)
	}
	v, err := kc.decode(raw)
	if err != nil {
		return nil, zero, fmt.Errorf("%s %v: %w", kc.kind, k, err)
	}
	return block, v, nil
}

func (kc *kindCache[K, V]) stats() KindStats {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	hits, misses := kc.lru.Stats()
	return KindStats{
		Kind:   kc.kind,
		Size:   kc.lru.Len(),
		Dirty:  len(kc.dirty),
		Hits:   hits,
		Misses: misses,
	}
}
