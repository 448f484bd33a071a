package bridge

import (
	"encoding/json"

	"voxelstamp.ai/internal/protocol"
)

// Status is returned by voxelstamp.get_status.
type Status struct {
	Connected    bool                 `json:"connected"`
	SessionID    string               `json:"session_id,omitempty"`
	WorldWSURL   string               `json:"world_ws_url"`
	WorldParams  protocol.WorldParams `json:"world_params"`
	Processors   []string             `json:"processors,omitempty"`
	TuningDigest string               `json:"tuning_digest,omitempty"`
	Pending      int                  `json:"pending"`
	LastError    string               `json:"last_error,omitempty"`
}

// ReplyError is a server ERROR reply surfaced to the caller.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string { return e.Code + ": " + e.Message }

// Reply is the raw server reply to one request.
type Reply = json.RawMessage
