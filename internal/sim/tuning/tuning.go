// Package tuning loads the world configuration file.
package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	World   WorldSpec   `yaml:"world"`
	Cache   CacheSpec   `yaml:"cache"`
	Storage StorageSpec `yaml:"storage"`
	Server  ServerSpec  `yaml:"server"`
	Audit   AuditSpec   `yaml:"audit"`

	// Generators, applied in order. Params are decoded by each generator.
	Areas   []GeneratorSpec `yaml:"areas"`
	Terrain []GeneratorSpec `yaml:"terrain"`
	Light   []GeneratorSpec `yaml:"light"`
}

type WorldSpec struct {
	Seed        int64 `yaml:"seed"`
	LightRadius int   `yaml:"light_radius"`
	LockShards  int   `yaml:"lock_shards"`
	QueueSize   int   `yaml:"queue_size"`
	Workers     int   `yaml:"workers"`
	// Materials is a catalog path; empty selects the built-in catalog.
	Materials string `yaml:"materials"`
}

type CacheSpec struct {
	Limit        int           `yaml:"limit"`
	Codec        string        `yaml:"codec"`
	CleanupEvery time.Duration `yaml:"cleanup_every"`
	TrimEvery    time.Duration `yaml:"trim_every"`
}

type StorageSpec struct {
	Backend string    `yaml:"backend"`
	Path    string    `yaml:"path"`
	MinIO   MinIOSpec `yaml:"minio"`
}

type MinIOSpec struct {
	Endpoint  string        `yaml:"endpoint"`
	Bucket    string        `yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Secure    bool          `yaml:"secure"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ServerSpec struct {
	Addr string `yaml:"addr"`
	// RequestsPerSecond and Burst limit each observer connection.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// HeightEvery is how often height changes are pushed to observers.
	HeightEvery time.Duration `yaml:"height_every"`
	// AllowEdits lets observers change blocks.
	AllowEdits bool `yaml:"allow_edits"`
}

type AuditSpec struct {
	// Dir holds the hourly block change logs; empty disables them.
	Dir string `yaml:"dir"`
	// Mirror uploads each closed hourly log to the storage.minio bucket,
	// under <prefix>/audit.
	Mirror bool `yaml:"mirror"`
	// MirrorWorkers is the number of upload workers. Zero means 1.
	MirrorWorkers int `yaml:"mirror_workers"`
}

type GeneratorSpec struct {
	Name   string    `yaml:"name"`
	Params yaml.Node `yaml:"params"`
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMinIO  = "minio"
)

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

// Parse reads a configuration on top of Defaults. Generator lists in the
// document replace the default lists.
func Parse(b []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		World: WorldSpec{
			Seed:        1,
			LightRadius: 1,
			LockShards:  4096,
			QueueSize:   1024,
			Workers:     4,
		},
		Cache: CacheSpec{
			Limit:        25000,
			Codec:        "lz4",
			CleanupEvery: 30 * time.Second,
			TrimEvery:    5 * time.Second,
		},
		Storage: StorageSpec{
			Backend: BackendSQLite,
			Path:    "data/world.db",
			MinIO:   MinIOSpec{Bucket: "voxelworld", Timeout: 10 * time.Second},
		},
		Server: ServerSpec{
			Addr:              ":8080",
			RequestsPerSecond: 200,
			Burst:             400,
			HeightEvery:       time.Second,
		},
		Areas:   []GeneratorSpec{{Name: "heightmap"}},
		Terrain: []GeneratorSpec{{Name: "heightmap"}, {Name: "soil"}, {Name: "trees"}},
		Light:   []GeneratorSpec{{Name: "sun"}},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.World.LightRadius <= 0 {
		c.World.LightRadius = 1
	}
	if c.World.Workers <= 0 {
		c.World.Workers = 1
	}
	c.Cache.Codec = strings.ToLower(strings.TrimSpace(c.Cache.Codec))
	if c.Cache.Codec == "" {
		c.Cache.Codec = "lz4"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Cache.CleanupEvery <= 0 {
		c.Cache.CleanupEvery = 30 * time.Second
	}
	if c.Cache.TrimEvery <= 0 {
		c.Cache.TrimEvery = 5 * time.Second
	}
	if c.Server.HeightEvery <= 0 {
		c.Server.HeightEvery = time.Second
	}
	if c.Storage.MinIO.Timeout <= 0 {
		c.Storage.MinIO.Timeout = 10 * time.Second
	}
	for _, list := range [][]GeneratorSpec{c.Areas, c.Terrain, c.Light} {
		for i := range list {
			list[i].Name = strings.ToLower(strings.TrimSpace(list[i].Name))
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.Cache.Limit < 0 {
		return fmt.Errorf("cache.limit must be >= 0")
	}
	switch c.Cache.Codec {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("cache.codec %q must be none, lz4 or zstd", c.Cache.Codec)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path must be set for sqlite")
		}
	case BackendMinIO:
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio needs endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Audit.Mirror && (c.Audit.Dir == "" || c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "") {
		return fmt.Errorf("audit.mirror needs audit.dir and storage.minio endpoint and bucket")
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("server rate limits must be >= 0")
	}
	for _, a := range c.Areas {
		if a.Name == "" {
			return fmt.Errorf("area generator name must not be empty")
		}
	}
	for _, g := range c.Terrain {
		if g.Name == "" {
			return fmt.Errorf("terrain generator name must not be empty")
		}
	}
	for _, g := range c.Light {
		if g.Name == "" {
			return fmt.Errorf("light generator name must not be empty")
		}
	}
	return nil
}
