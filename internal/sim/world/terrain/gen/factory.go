package gen

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"voxelworld.ai/internal/sim/catalogs"
	"voxelworld.ai/internal/sim/world/terrain"
	"voxelworld.ai/internal/voxel"
)

var ErrUnknownGenerator = errors.New("unknown generator")

// Env carries what generator constructors need besides their own params.
type Env struct {
	Materials *catalogs.Materials
	Seed      int64
}

func decode(params *yaml.Node, v any) error {
	if params == nil || params.Kind == 0 {
		return nil
	}
	return params.Decode(v)
}

func (e Env) block(name string) (voxel.Block, error) {
	return e.Materials.Lookup(name)
}

func (e Env) blocks(names []string) ([]voxel.Block, error) {
	out := make([]voxel.Block, 0, len(names))
	for _, n := range names {
		b, err := e.block(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

type flatParams struct {
	Level    int    `yaml:"level"`
	Material string `yaml:"material"`
}

type soilParams struct {
	Replace   string     `yaml:"replace"`
	Layers    [][]string `yaml:"layers"`
	BiomeArea string     `yaml:"biome_area"`
}

type heightmapParams struct {
	Area     string `yaml:"area"`
	Material string `yaml:"material"`
}

type oresParams struct {
	Material string `yaml:"material"`
	Replace  string `yaml:"replace"`
	Grid     int    `yaml:"grid"`
	Radius   int    `yaml:"radius"`
	Permille int    `yaml:"permille"`
	MinZ     int    `yaml:"min_z"`
	MaxZ     int    `yaml:"max_z"`
}

type treesParams struct {
	Trunk     string `yaml:"trunk"`
	Leaves    string `yaml:"leaves"`
	Ground    string `yaml:"ground"`
	Spacing   int    `yaml:"spacing"`
	Permille  int    `yaml:"permille"`
	BiomeArea string `yaml:"biome_area"`
	Clearing  int    `yaml:"clearing"`
}

// Terrain builds the terrain generator registered under name.
func Terrain(name string, params *yaml.Node, env Env) (terrain.Generator, error) {
	g, err := newTerrain(name, params, env)
	if err != nil {
		return nil, fmt.Errorf("terrain generator %q: %w", name, err)
	}
	return g, nil
}

func newTerrain(name string, params *yaml.Node, env Env) (terrain.Generator, error) {
	switch name {
	case "flat":
		p := flatParams{Material: "stone"}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		m, err := env.block(p.Material)
		if err != nil {
			return nil, err
		}
		return Flat{Level: p.Level, Material: m}, nil

	case "soil":
		p := soilParams{Replace: "stone", Layers: [][]string{{"grass", "dirt", "dirt"}}}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		r, err := env.block(p.Replace)
		if err != nil {
			return nil, err
		}
		s := Soil{Replace: r, BiomeArea: p.BiomeArea}
		for _, names := range p.Layers {
			bs, err := env.blocks(names)
			if err != nil {
				return nil, err
			}
			s.Layers = append(s.Layers, bs)
		}
		return s, nil

	case "heightmap":
		p := heightmapParams{Area: "heightmap", Material: "stone"}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		m, err := env.block(p.Material)
		if err != nil {
			return nil, err
		}
		return Heightmap{Area: p.Area, Material: m}, nil

	case "ores":
		p := oresParams{Material: "coal_ore", Replace: "stone", Grid: 24, Radius: 2, Permille: 300, MinZ: -256, MaxZ: 0}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		m, err := env.block(p.Material)
		if err != nil {
			return nil, err
		}
		r, err := env.block(p.Replace)
		if err != nil {
			return nil, err
		}
		return Ores{Seed: env.Seed, Material: m, Replace: r, Grid: p.Grid, Radius: p.Radius,
			Permille: uint64(ClampPermille(p.Permille)), MinZ: p.MinZ, MaxZ: p.MaxZ}, nil

	case "trees":
		p := treesParams{Trunk: "wood", Leaves: "leaves", Ground: "grass", Spacing: 7, Permille: 250}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		bs, err := env.blocks([]string{p.Trunk, p.Leaves, p.Ground})
		if err != nil {
			return nil, err
		}
		if p.Spacing <= 0 {
			return nil, fmt.Errorf("spacing must be > 0")
		}
		return Trees{Seed: env.Seed, Trunk: bs[0], Leaves: bs[1], Ground: bs[2], Spacing: p.Spacing,
			Permille: uint64(ClampPermille(p.Permille)), BiomeArea: p.BiomeArea, Clearing: p.Clearing}, nil
	}
	return nil, ErrUnknownGenerator
}

type heightmapAreaParams struct {
	Base      int `yaml:"base"`
	Amplitude int `yaml:"amplitude"`
	Cell      int `yaml:"cell"`
	Octaves   int `yaml:"octaves"`
}

type fixedAreaParams struct {
	Kind  string `yaml:"kind"`
	Value int16  `yaml:"value"`
}

type biomeAreaParams struct {
	RegionSize int `yaml:"region_size"`
}

// Area builds the area generator registered under name.
func Area(name string, params *yaml.Node, env Env) (terrain.AreaGenerator, error) {
	g, err := newArea(name, params, env)
	if err != nil {
		return nil, fmt.Errorf("area generator %q: %w", name, err)
	}
	return g, nil
}

func newArea(name string, params *yaml.Node, env Env) (terrain.AreaGenerator, error) {
	switch name {
	case "heightmap":
		p := heightmapAreaParams{Base: 0, Amplitude: 32, Cell: 64, Octaves: 3}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return HeightmapArea{Seed: env.Seed, Base: p.Base, Amplitude: p.Amplitude, Cell: p.Cell, Octaves: p.Octaves}, nil
	case "fixed":
		var p fixedAreaParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.Kind == "" {
			return nil, fmt.Errorf("fixed area needs a kind")
		}
		return FixedArea{Kind: p.Kind, Value: p.Value}, nil
	case "biome":
		p := biomeAreaParams{RegionSize: 128}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return BiomeArea{Seed: env.Seed, RegionSize: p.RegionSize}, nil
	}
	return nil, ErrUnknownGenerator
}
