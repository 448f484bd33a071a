package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"voxelstamp.ai/internal/protocol"
	"voxelstamp.ai/internal/sidecar/bridge"
)

type Bridge interface {
	GetStatus(ctx context.Context, sessionKey string) (bridge.Status, error)
	List(ctx context.Context, sessionKey string) (bridge.Reply, error)
	Place(ctx context.Context, sessionKey string, args protocol.PlaceMsg) (bridge.Reply, error)
	Filter(ctx context.Context, sessionKey string, args protocol.FilterMsg) (bridge.Reply, error)
	Scan(ctx context.Context, sessionKey string, args protocol.ScanMsg) (bridge.Reply, error)
	Disconnect(ctx context.Context, sessionKey string) error
}

type Config struct {
	Bridge     Bridge
	HMACSecret string
	// AllowLegacyHMAC accepts signatures without x-nonce.
	AllowLegacyHMAC bool
	// ReplayTTL bounds how long a signature is remembered; 0 means 10 minutes.
	ReplayTTL time.Duration
	Logger    *log.Logger
}

type Server struct {
	bridge Bridge
	auth   *verifier
	replay *replayGuard
	logger *log.Logger
	now    func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("nil bridge")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Server{
		bridge: cfg.Bridge,
		logger: cfg.Logger,
		now:    time.Now,
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.auth = &verifier{secret: []byte(cfg.HMACSecret), allowLegacy: cfg.AllowLegacyHMAC}
		s.replay = newReplayGuard(cfg.ReplayTTL, cfg.Logger)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func writeAuthError(rw http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	var ae *authError
	if errors.As(err, &ae) {
		status = ae.status
	}
	rw.WriteHeader(status)
	_, _ = rw.Write([]byte(err.Error()))
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad body"))
		return
	}
	_ = r.Body.Close()

	sessionKey := strings.TrimSpace(r.Header.Get(headerClientID))
	var signed signedRequest
	if s.auth != nil {
		signed, err = s.auth.verify(r, body, s.now())
		if err != nil {
			s.logger.Debug("auth rejected", "remote", r.RemoteAddr, "err", err)
			writeAuthError(rw, err)
			return
		}
		sessionKey = signed.clientID
	} else if err := requireLoopback(r); err != nil {
		writeAuthError(rw, err)
		return
	}
	if sessionKey == "" {
		sessionKey = "default"
	}

	var resp rpcResponse
	req, perr := parseRPCRequest(body)
	switch {
	case perr != nil:
		resp = rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: perr}
	case !s.replay.allow(signed.clientID, signed.signature, req.label(), s.now()):
		writeAuthError(rw, unauthorized("replayed signature"))
		return
	default:
		resp = s.dispatch(r.Context(), sessionKey, req)
	}
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, sessionKey string, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools":
		return rpcOK(req.ID, map[string]any{"tools": s.toolsList()})

	case "call_tool":
		p, perr := parseToolCall(req.Params)
		if perr != nil {
			return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: perr}
		}
		if !isKnownTool(p.Name) {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, sessionKey, p.Name, p.Arguments)
		if err != nil {
			s.logger.Debug("tool failed", "client", sessionKey, "request", req.label(), "err", err)
			return toolFailure(req.ID, err)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

var (
	vec3Schema = map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "minItems": 3, "maxItems": 3}
	rotSchema  = map[string]any{"type": "string", "enum": []string{"none", "cw_90", "cw_180", "ccw_90"}}
	mirSchema  = map[string]any{"type": "string", "enum": []string{"none", "left_right", "front_back"}}
	boxSchema  = map[string]any{
		"type":       "object",
		"properties": map[string]any{"min": vec3Schema, "max": vec3Schema},
		"required":   []string{"min", "max"},
	}
	emptySchema = map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}
)

func (s *Server) toolsList() []map[string]any {
	return []map[string]any{
		{
			"name":        "voxelstamp.get_status",
			"description": "Get the session status of the backing world connection.",
			"inputSchema": emptySchema,
		},
		{
			"name":        "voxelstamp.list_blueprints",
			"description": "List stored blueprints with their sizes and variant counts.",
			"inputSchema": emptySchema,
		},
		{
			"name":        "voxelstamp.place",
			"description": "Place a stored blueprint into the world.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"blueprint":       map[string]any{"type": "string"},
					"anchor":          vec3Schema,
					"pivot":           vec3Schema,
					"rotation":        rotSchema,
					"mirror":          mirSchema,
					"seed":            map[string]any{"type": "integer"},
					"processors":      map[string]any{"type": "string"},
					"clip":            boxSchema,
					"ignore_entities": map[string]any{"type": "boolean"},
					"keep_liquids":    map[string]any{"type": "boolean"},
				},
				"required": []string{"blueprint", "anchor"},
			},
		},
		{
			"name":        "voxelstamp.filter",
			"description": "Preview where one block type of a blueprint would land.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"blueprint":   map[string]any{"type": "string"},
					"block":       map[string]any{"type": "string"},
					"anchor":      vec3Schema,
					"pivot":       vec3Schema,
					"rotation":    rotSchema,
					"mirror":      mirSchema,
					"seed":        map[string]any{"type": "integer"},
					"transformed": map[string]any{"type": "boolean"},
				},
				"required": []string{"blueprint", "block", "anchor"},
			},
		},
		{
			"name":        "voxelstamp.scan",
			"description": "Read back a box of the world as a run-length encoded palette grid.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"box":           boxSchema,
					"with_entities": map[string]any{"type": "boolean"},
				},
				"required": []string{"box"},
			},
		},
		{
			"name":        "voxelstamp.disconnect",
			"description": "Drop the backing world connection for this client.",
			"inputSchema": emptySchema,
		},
	}
}

func (s *Server) callTool(ctx context.Context, sessionKey string, name string, args json.RawMessage) (any, error) {
	switch name {
	case "voxelstamp.get_status":
		st, err := s.bridge.GetStatus(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		return st, nil

	case "voxelstamp.list_blueprints":
		return s.bridge.List(ctx, sessionKey)

	case "voxelstamp.place":
		var p protocol.PlaceMsg
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		if p.Blueprint == "" {
			return nil, badArgs("missing blueprint")
		}
		return s.bridge.Place(ctx, sessionKey, p)

	case "voxelstamp.filter":
		var p protocol.FilterMsg
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		if p.Blueprint == "" || p.Block == "" {
			return nil, badArgs("missing blueprint or block")
		}
		return s.bridge.Filter(ctx, sessionKey, p)

	case "voxelstamp.scan":
		var p protocol.ScanMsg
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return s.bridge.Scan(ctx, sessionKey, p)

	case "voxelstamp.disconnect":
		if err := s.bridge.Disconnect(ctx, sessionKey); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	default:
		return nil, &toolError{Code: protocol.ErrNotFound, Message: "unknown tool: " + name}
	}
}

func isKnownTool(name string) bool {
	switch name {
	case "voxelstamp.get_status",
		"voxelstamp.list_blueprints",
		"voxelstamp.place",
		"voxelstamp.filter",
		"voxelstamp.scan",
		"voxelstamp.disconnect":
		return true
	default:
		return false
	}
}
