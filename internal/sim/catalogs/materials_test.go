package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultMaterials(t *testing.T) {
	m := Default()
	if m.Get(0).Name != AirName {
		t.Fatalf("id 0 = %q, want air", m.Get(0).Name)
	}
	if m.IsVisuallySolid(0) {
		t.Fatalf("air must not be visually solid")
	}
	stone, ok := m.Find("stone")
	if !ok || !m.IsVisuallySolid(stone) {
		t.Fatalf("stone missing or not solid")
	}
	glass, _ := m.Find("glass")
	if !m.Get(glass).IsTransparent() || m.IsVisuallySolid(glass) {
		t.Fatalf("glass must be transparent")
	}
	torch, _ := m.Find("torch")
	if !m.Get(torch).IsCustom() || m.IsVisuallySolid(torch) {
		t.Fatalf("torch must be a custom model")
	}
	grass, _ := m.Find("grass")
	g := m.Get(grass)
	if m.TextureName(g.Textures[4]) != "grass_top" || m.TextureName(g.Textures[5]) != "dirt" {
		t.Fatalf("grass textures resolved to %q/%q", m.TextureName(g.Textures[4]), m.TextureName(g.Textures[5]))
	}
	if m.Digest == "" {
		t.Fatalf("expected digest")
	}
}

func TestUnknownIDIsSolid(t *testing.T) {
	m := Default()
	if !m.IsVisuallySolid(60000) {
		t.Fatalf("unknown ids behave as solid")
	}
}

func TestNewPrependsAir(t *testing.T) {
	m, err := New([]MaterialDef{{Name: "rock", Textures: []string{"rock"}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Len() != 2 || m.Get(1).Name != "rock" {
		t.Fatalf("unexpected registry: %v", m.Names())
	}
}

func TestNewRejectsLateAirAndDuplicates(t *testing.T) {
	if _, err := New([]MaterialDef{{Name: "rock"}, {Name: AirName}}); err == nil {
		t.Fatalf("expected error for air not first")
	}
	if _, err := New([]MaterialDef{{Name: AirName}, {Name: "rock"}, {Name: "rock"}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestParseValidatesSchema(t *testing.T) {
	cases := map[string]string{
		"bad texture count": `[{"name":"air"},{"name":"x","textures":["a","b"]}]`,
		"unknown field":     `[{"name":"air"},{"name":"x","colour":"red"}]`,
		"emission range":    `[{"name":"air"},{"name":"x","light_emission":99}]`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "materials.json")
	doc := `[{"name":"air","transparency":255,"solid":false},{"name":"brick","textures":["brick"]}]`
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := m.Lookup("brick"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := m.Lookup("marble"); err == nil || !strings.Contains(err.Error(), "marble") {
		t.Fatalf("expected unknown material error, got %v", err)
	}
}
