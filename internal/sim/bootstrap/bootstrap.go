// Package bootstrap assembles a World from a tuning.Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"voxelworld.ai/internal/memcache"
	"voxelworld.ai/internal/persistence/codec"
	"voxelworld.ai/internal/persistence/objstore"
	"voxelworld.ai/internal/persistence/sqlitestore"
	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/tuning"
	"voxelworld.ai/internal/sim/world"
	"voxelworld.ai/internal/sim/world/light"
	"voxelworld.ai/internal/sim/world/terrain/gen"
)

// Runtime is everything a process needs to serve one world.
type Runtime struct {
	Config    tuning.Config
	Materials *catalogs.Materials
	Storage   storage.Storage
	Cache     *memcache.Cache
	World     *world.World
}

// OpenStorage opens the configured backend.
func OpenStorage(ctx context.Context, spec tuning.StorageSpec, logger *log.Logger) (storage.Storage, error) {
	switch spec.Backend {
	case tuning.BackendMemory:
		return storage.NewMemory(), nil
	case tuning.BackendSQLite:
		st, err := sqlitestore.Open(spec.Path, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case tuning.BackendMinIO:
		m := spec.MinIO
		st, err := objstore.Dial(ctx, objstore.Options{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			Secure:    m.Secure,
			Timeout:   m.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", spec.Backend)
	}
}

// LoadMaterials reads the catalog at path, or the built-in one when path
// is empty.
func LoadMaterials(path string) (*catalogs.Materials, error) {
	if path == "" {
		return catalogs.Default(), nil
	}
	return catalogs.Load(path)
}

// Build opens storage and constructs the world with every configured
// generator registered. The caller owns the returned Runtime and must Close
// it.
func Build(ctx context.Context, cfg tuning.Config, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mats, err := LoadMaterials(cfg.World.Materials)
	if err != nil {
		return nil, fmt.Errorf("materials: %w", err)
	}
	ct, err := codec.Parse(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}
	st, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	cache := memcache.New(st, memcache.Options{Codec: ct, Limit: cfg.Cache.Limit, Logger: logger})
	w := world.New(world.Config{
		Seed:        cfg.World.Seed,
		LightRadius: cfg.World.LightRadius,
		LockShards:  cfg.World.LockShards,
		QueueSize:   cfg.World.QueueSize,
	}, cache, mats, logger)

	if err := Register(w, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Printf("world seed=%d storage=%s codec=%s phases=%d region=%d",
		cfg.World.Seed, cfg.Storage.Backend, ct, w.Phases(), len(w.Region()))
	return &Runtime{Config: cfg, Materials: mats, Storage: st, Cache: cache, World: w}, nil
}

// Register adds the configured area, terrain and light generators to w in
// order. Areas come first so terrain generators can resolve them.
func Register(w *world.World, cfg tuning.Config) error {
	env := gen.Env{Materials: w.Materials(), Seed: w.Seed()}
	for _, s := range cfg.Areas {
		a, err := gen.Area(s.Name, &s.Params, env)
		if err != nil {
			return fmt.Errorf("area %s: %w", s.Name, err)
		}
		if _, err := w.AddAreaGenerator(a); err != nil {
			return fmt.Errorf("area %s: %w", s.Name, err)
		}
	}
	for _, s := range cfg.Terrain {
		g, err := gen.Terrain(s.Name, &s.Params, env)
		if err != nil {
			return fmt.Errorf("terrain %s: %w", s.Name, err)
		}
		w.AddTerrainGenerator(g)
	}
	for _, s := range cfg.Light {
		g, err := light.New(s.Name, &s.Params)
		if err != nil {
			return fmt.Errorf("light %s: %w", s.Name, err)
		}
		w.AddLightmapGenerator(g)
	}
	return nil
}

// Close flushes every dirty cache entry and closes storage.
func (r *Runtime) Close() error {
	return errors.Join(r.World.Cleanup(), r.Storage.Close())
}
