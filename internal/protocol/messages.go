package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Processors      []string       `json:"processors"`
}

type WorldParams struct {
	Seed     int64  `json:"seed"`
	Terrain  string `json:"terrain"`
	MinY     int    `json:"min_y"`
	MaxY     int    `json:"max_y"`
	SeaLevel int    `json:"sea_level"`
}

type CatalogDigests struct {
	BlockPalette     DigestRef `json:"block_palette"`
	BlockDefsDigest  string    `json:"block_defs_digest"`
	EntitiesDigest   string    `json:"entities_digest"`
	ProcessorsDigest string    `json:"processors_digest"`
	TuningDigest     string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// PLACE (client -> server)
type PlaceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`

	Blueprint string `json:"blueprint"`
	Anchor    [3]int `json:"anchor"`
	// Pivot is the rotation pivot in blueprint-local coordinates.
	Pivot    [3]int `json:"pivot,omitempty"`
	Rotation string `json:"rotation,omitempty"`
	Mirror   string `json:"mirror,omitempty"`
	// Seed makes the placement reproducible; otherwise it is derived from the anchor.
	Seed       *int64 `json:"seed,omitempty"`
	Processors string `json:"processors,omitempty"`
	Clip       *Box   `json:"clip,omitempty"`

	IgnoreEntities   *bool    `json:"ignore_entities,omitempty"`
	KeepLiquids      *bool    `json:"keep_liquids,omitempty"`
	KnownShape       *bool    `json:"known_shape,omitempty"`
	FinalizeEntities *bool    `json:"finalize_entities,omitempty"`
	Flags            []string `json:"flags,omitempty"`
}

// PLACE_RESULT (server -> client)
type PlaceResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`

	Placed          bool `json:"placed"`
	Variant         int  `json:"variant"`
	BlocksWritten   int  `json:"blocks_written"`
	BlocksDropped   int  `json:"blocks_dropped"`
	EntitiesPlaced  int  `json:"entities_placed"`
	EntitiesSkipped int  `json:"entities_skipped"`
	Touched         *Box `json:"touched,omitempty"`
}

// FILTER (client -> server): blocks of one type as they would be placed.
type FilterMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`

	Blueprint   string `json:"blueprint"`
	Block       string `json:"block"`
	Anchor      [3]int `json:"anchor"`
	Pivot       [3]int `json:"pivot,omitempty"`
	Rotation    string `json:"rotation,omitempty"`
	Mirror      string `json:"mirror,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
	Transformed bool   `json:"transformed,omitempty"`
}

type FilteredBlock struct {
	Pos     [3]int `json:"pos"`
	State   string `json:"state"`
	HasData bool   `json:"has_data,omitempty"`
}

type FilterResultMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Blocks          []FilteredBlock `json:"blocks"`
}

// SCAN (client -> server): read back a box of the world.
type ScanMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Box             Box    `json:"box"`
	WithEntities    bool   `json:"with_entities,omitempty"`
}

// SCAN_RESULT cells are palette ids, x fastest, then z, then y, run-length encoded.
type ScanResultMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id"`
	Min             [3]int      `json:"min"`
	Size            [3]int      `json:"size"`
	Palette         []string    `json:"palette"`
	Encoding        string      `json:"encoding"`
	Data            string      `json:"data"`
	Entities        []EntityObs `json:"entities,omitempty"`
}

type EntityObs struct {
	ID   string     `json:"id"`
	Type string     `json:"type"`
	Pos  [3]float64 `json:"pos"`
}

// LIST (client -> server)
type ListMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
}

type BlueprintInfo struct {
	Name     string `json:"name"`
	Size     [3]int `json:"size"`
	Palettes int    `json:"palettes"`
	Blocks   int    `json:"blocks"`
	Entities int    `json:"entities"`
	Author   string `json:"author,omitempty"`
}

type ListResultMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Blueprints      []BlueprintInfo `json:"blueprints"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: msg}
}
