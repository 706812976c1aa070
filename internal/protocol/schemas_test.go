package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelworld.ai/internal/protocol"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	// validate round-trips v through JSON so Go structs are checked the
	// way clients see them.
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("get.schema.json"), protocol.GetMsg{Type: protocol.TypeGet, ID: 1, Kind: protocol.KindSurface, Pos: [3]int{0, -1, 2}})
	validate(compile("set.schema.json"), protocol.SetMsg{Type: protocol.TypeSet, Pos: [3]int{1, 2, 3}, Block: "stone"})

	data := compile("data.schema.json")
	validate(data, protocol.DataMsg{Type: protocol.TypeData, Kind: protocol.KindChunk, Data: []byte{1, 2, 3}})
	validate(data, protocol.DataMsg{Type: protocol.TypeData, Kind: protocol.KindLightmap, Empty: true})

	validate(compile("error.schema.json"), protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrRateLimit, Message: "slow down"})
	validate(compile("height.schema.json"), protocol.HeightMsg{Type: protocol.TypeHeight, Columns: []protocol.ColumnHeight{{X: 1, Y: -2, Height: 4}}})
}

func TestSchemas_RejectMalformedGet(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "get.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"GET","kind":"voxels","pos":[1,2]}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestIsKnownCode(t *testing.T) {
	for _, c := range []string{"", protocol.ErrProtoBadRequest, protocol.ErrBadRequest, protocol.ErrUnknownBlock,
		protocol.ErrNoPermission, protocol.ErrRateLimit, protocol.ErrBusy, protocol.ErrInternal} {
		if !protocol.IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if protocol.IsKnownCode("E_NOT_A_REAL_CODE") {
		t.Fatal("expected unknown code")
	}
}
