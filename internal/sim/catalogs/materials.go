package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelworld.ai/internal/voxel"
)

//go:embed materials.schema.json
var materialsSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func materialsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("materials.schema.json", materialsSchemaJSON)
	})
	return schema, schemaErr
}

// AirName is always material id 0.
const AirName = "air"

type MaterialDef struct {
	Name          string   `json:"name"`
	Textures      []string `json:"textures,omitempty"`
	Transparency  uint8    `json:"transparency,omitempty"`
	LightEmission uint8    `json:"light_emission,omitempty"`
	Solid         *bool    `json:"solid,omitempty"`
	Strength      int      `json:"strength,omitempty"`
	Model         []BoxDef `json:"model,omitempty"`
}

type BoxDef struct {
	Min     [3]int `json:"min"`
	Max     [3]int `json:"max"`
	Texture string `json:"texture,omitempty"`
}

// Box is one part of a custom block model, in 1/16 block units.
type Box struct {
	Min, Max [3]uint8
	Texture  uint16
}

// Material is the resolved form of a MaterialDef. Textures are ordered by
// voxel.Direction.
type Material struct {
	ID            voxel.Block
	Name          string
	Textures      [6]uint16
	Transparency  uint8
	LightEmission uint8
	Solid         bool
	Strength      int
	Model         []Box
}

func (m *Material) IsTransparent() bool { return m.Transparency > 0 }
func (m *Material) IsCustom() bool      { return len(m.Model) > 0 }

// IsVisuallySolid is true for opaque cuboid blocks, which hide the faces
// of their neighbors.
func (m *Material) IsVisuallySolid() bool { return !m.IsTransparent() && !m.IsCustom() }

// Materials is the material registry. It is immutable after construction
// and safe for concurrent use.
type Materials struct {
	list     []Material
	index    map[string]voxel.Block
	textures []string
	visSolid []bool

	Digest string
}

func Load(path string) (*Materials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates raw against the materials schema and builds the registry.
func Parse(raw []byte) (*Materials, error) {
	s, err := materialsSchema()
	if err != nil {
		return nil, fmt.Errorf("materials schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}
	var defs []MaterialDef
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}
	m, err := New(defs)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	m.Digest = hex.EncodeToString(sum[:])
	return m, nil
}

// New builds a registry from defs in order. Air is prepended when missing and
// must be first when present.
func New(defs []MaterialDef) (*Materials, error) {
	if len(defs) == 0 || defs[0].Name != AirName {
		for _, d := range defs {
			if d.Name == AirName {
				return nil, fmt.Errorf("materials: %q must be the first entry", AirName)
			}
		}
		f := false
		defs = append([]MaterialDef{{Name: AirName, Transparency: 255, Solid: &f}}, defs...)
	}
	if len(defs) > 1<<16 {
		return nil, fmt.Errorf("materials: %d entries exceed the block id range", len(defs))
	}

	m := &Materials{
		index: make(map[string]voxel.Block, len(defs)),
	}
	texIndex := map[string]uint16{}
	tex := func(name string) uint16 {
		if name == "" {
			return 0
		}
		if i, ok := texIndex[name]; ok {
			return i
		}
		m.textures = append(m.textures, name)
		i := uint16(len(m.textures))
		texIndex[name] = i
		return i
	}

	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("materials: entry %d has an empty name", i)
		}
		if _, dup := m.index[d.Name]; dup {
			return nil, fmt.Errorf("materials: duplicate name %q", d.Name)
		}
		mat := Material{
			ID:            voxel.Block(i),
			Name:          d.Name,
			Transparency:  d.Transparency,
			LightEmission: d.LightEmission,
			Solid:         true,
			Strength:      d.Strength,
		}
		if d.Solid != nil {
			mat.Solid = *d.Solid
		}
		switch len(d.Textures) {
		case 0:
		case 1:
			t := tex(d.Textures[0])
			for k := range mat.Textures {
				mat.Textures[k] = t
			}
		case 6:
			for k, name := range d.Textures {
				mat.Textures[k] = tex(name)
			}
		default:
			return nil, fmt.Errorf("materials: %q needs 1 or 6 textures, got %d", d.Name, len(d.Textures))
		}
		for _, b := range d.Model {
			box := Box{Texture: tex(b.Texture)}
			for k := 0; k < 3; k++ {
				if b.Min[k] < 0 || b.Max[k] > 16 || b.Min[k] >= b.Max[k] {
					return nil, fmt.Errorf("materials: %q has a degenerate model box %v-%v", d.Name, b.Min, b.Max)
				}
				box.Min[k], box.Max[k] = uint8(b.Min[k]), uint8(b.Max[k])
			}
			mat.Model = append(mat.Model, box)
		}
		m.index[d.Name] = mat.ID
		m.list = append(m.list, mat)
		m.visSolid = append(m.visSolid, mat.IsVisuallySolid())
	}
	return m, nil
}

var unknown = Material{Name: "unknown", Solid: true}

// Get returns the material for id. Ids beyond the registry behave as an
// opaque, untextured solid.
func (m *Materials) Get(id voxel.Block) *Material {
	if int(id) < len(m.list) {
		return &m.list[id]
	}
	return &unknown
}

func (m *Materials) IsVisuallySolid(id voxel.Block) bool {
	if int(id) < len(m.visSolid) {
		return m.visSolid[id]
	}
	return true
}

func (m *Materials) Find(name string) (voxel.Block, bool) {
	id, ok := m.index[name]
	return id, ok
}

// Lookup resolves name or fails with a descriptive error.
func (m *Materials) Lookup(name string) (voxel.Block, error) {
	id, ok := m.index[name]
	if !ok {
		return 0, fmt.Errorf("unknown material %q", name)
	}
	return id, nil
}

func (m *Materials) Len() int { return len(m.list) }

func (m *Materials) Names() []string {
	out := make([]string, len(m.list))
	for i := range m.list {
		out[i] = m.list[i].Name
	}
	return out
}

// TextureName returns the texture registered under index i, or "" for 0.
func (m *Materials) TextureName(i uint16) string {
	if i == 0 || int(i) > len(m.textures) {
		return ""
	}
	return m.textures[i-1]
}

//go:embed materials.json
var defaultMaterialsJSON []byte

// Default returns the built-in material set.
func Default() *Materials {
	m, err := Parse(defaultMaterialsJSON)
	if err != nil {
		panic(fmt.Sprintf("catalogs: built-in materials: %v", err))
	}
	return m
}
