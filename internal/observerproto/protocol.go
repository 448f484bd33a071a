package observerproto

// Version is the observer protocol version (separate from the request WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypePlacement = "PLACEMENT"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to
// replace the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional filters. Empty means everything.
	Blueprints []string   `json:"blueprints,omitempty"`
	Box        *[2][3]int `json:"box,omitempty"`
}

// Matches reports whether ev passes the subscription filter. The box filter keeps
// events whose touched region intersects it.
func (s SubscribeMsg) Matches(ev PlacementMsg) bool {
	if len(s.Blueprints) > 0 {
		ok := false
		for _, b := range s.Blueprints {
			if b == ev.Blueprint {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if s.Box != nil {
		if ev.Touched == nil {
			return false
		}
		for i := 0; i < 3; i++ {
			lo, hi := s.Box[0][i], s.Box[1][i]
			if lo > hi {
				lo, hi = hi, lo
			}
			if ev.Touched[1][i] < lo || ev.Touched[0][i] > hi {
				return false
			}
		}
	}
	return true
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
	Blueprints      []string    `json:"blueprints"`
	LastSeq         uint64      `json:"last_seq"`
}

type WorldParams struct {
	Seed      int64  `json:"seed"`
	Terrain   string `json:"terrain"`
	MinY      int    `json:"min_y"`
	MaxY      int    `json:"max_y"`
	SeaLevel  int    `json:"sea_level"`
	BoundaryR int    `json:"boundary_r"`
}

// Server -> Client. Sent after every placement that wrote to the world.
type PlacementMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	// Unix millis.
	At int64 `json:"at"`

	Source         string     `json:"source"`
	Blueprint      string     `json:"blueprint"`
	Anchor         [3]int     `json:"anchor"`
	Rotation       string     `json:"rotation"`
	Mirror         string     `json:"mirror"`
	Variant        int        `json:"variant"`
	BlocksWritten  int        `json:"blocks_written"`
	EntitiesPlaced int        `json:"entities_placed"`
	Touched        *[2][3]int `json:"touched,omitempty"`
	// Extent is the full transformed blueprint box, before clipping.
	Extent [2][3]int `json:"extent"`
}
