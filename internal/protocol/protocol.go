package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"

	TypePlace  = "PLACE"
	TypeFilter = "FILTER"
	TypeScan   = "SCAN"
	TypeList   = "LIST"

	TypePlaceResult  = "PLACE_RESULT"
	TypeFilterResult = "FILTER_RESULT"
	TypeScanResult   = "SCAN_RESULT"
	TypeListResult   = "LIST_RESULT"
	TypeError        = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Box is an inclusive world-space box.
type Box struct {
	Min [3]int `json:"min"`
	Max [3]int `json:"max"`
}
