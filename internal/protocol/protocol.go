// Package protocol defines the JSON messages exchanged with observers over
// the websocket feed.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeGet     = "GET"
	TypeSet     = "SET"
	TypeData    = "DATA"
	TypeChanged = "CHANGED"
	TypeError   = "ERROR"
	TypeHeight  = "HEIGHT"
	TypeSurface = "SURFACE"
)

// Data kinds a GET may ask for.
const (
	KindChunk    = "chunk"
	KindSurface  = "surface"
	KindLightmap = "lightmap"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              uint64 `json:"id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server.
type GetMsg struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`
	Kind string `json:"kind"`
	// Pos is a chunk position.
	Pos [3]int `json:"pos"`
}

// Client -> Server. Only honored when the server allows edits.
type SetMsg struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`
	// Pos is a block position in world coordinates.
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

// Server -> Client reply to GET. Data holds the stored, compressed bytes;
// it is omitted when Empty is set.
type DataMsg struct {
	Type  string `json:"type"`
	ID    uint64 `json:"id,omitempty"`
	Kind  string `json:"kind"`
	Pos   [3]int `json:"pos"`
	Empty bool   `json:"empty"`
	Data  []byte `json:"data,omitempty"`
}

// Server -> Client reply to SET with the chunks whose derived data changed.
type ChangedMsg struct {
	Type   string   `json:"type"`
	ID     uint64   `json:"id,omitempty"`
	Chunks [][3]int `json:"chunks"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ColumnHeight struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Height int `json:"height"`
}

// Server -> Client push of columns whose coarse height moved.
type HeightMsg struct {
	Type    string         `json:"type"`
	Columns []ColumnHeight `json:"columns"`
}

// Server -> Client push of chunks whose surface was rebuilt.
type SurfaceMsg struct {
	Type   string   `json:"type"`
	Chunks [][3]int `json:"chunks"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	Seed            int64    `json:"seed"`
	ChunkSize       [3]int   `json:"chunk_size"`
	Phases          int      `json:"phases"`
	AllowEdits      bool     `json:"allow_edits"`
	BlockPalette    []string `json:"block_palette"`
}
