package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voxelstamp.ai/internal/protocol"
	"voxelstamp.ai/internal/sidecar/bridge"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	// codeToolFailed carries the world's protocol error code in data.code.
	codeToolFailed = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// toolCall is the params object of call_tool.
type toolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// blueprintArg is the subset of tool arguments used to label log lines.
type blueprintArg struct {
	Blueprint string `json:"blueprint"`
}

// toolError is a tool failure raised before the request reaches the world. Code is
// one of the protocol error codes.
type toolError struct {
	Code    string
	Message string
}

func (e *toolError) Error() string { return e.Code + ": " + e.Message }

func badArgs(format string, args ...any) error {
	return &toolError{Code: protocol.ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func rpcErr(id json.RawMessage, code int, msg string, data any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg, Data: data}}
}

func rpcOK(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// toolFailure maps a failed tool call onto codeToolFailed. World replies keep their
// code; local argument errors report E_BAD_REQUEST and timeouts E_BUSY.
func toolFailure(id json.RawMessage, err error) rpcResponse {
	code, msg := protocol.ErrInternal, err.Error()
	var re *bridge.ReplyError
	var te *toolError
	switch {
	case errors.As(err, &re):
		code, msg = re.Code, re.Message
	case errors.As(err, &te):
		code, msg = te.Code, te.Message
	case errors.Is(err, context.DeadlineExceeded):
		code = protocol.ErrBusy
	}
	return rpcErr(id, codeToolFailed, msg, map[string]any{"code": code})
}

func parseRPCRequest(body []byte) (rpcRequest, *rpcError) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return rpcRequest{}, &rpcError{Code: codeParseError, Message: "parse error", Data: err.Error()}
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return req, &rpcError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version"}
	}
	if req.Method == "" {
		return req, &rpcError{Code: codeInvalidRequest, Message: "missing method"}
	}
	return req, nil
}

func parseToolCall(params json.RawMessage) (toolCall, *rpcError) {
	var p toolCall
	if len(params) == 0 {
		return p, &rpcError{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, &rpcError{Code: codeInvalidParams, Message: "bad params", Data: err.Error()}
	}
	if p.Name == "" {
		return p, &rpcError{Code: codeInvalidParams, Message: "missing tool name"}
	}
	return p, nil
}

// label names a request for logs, e.g. "call_tool voxelstamp.place wall".
func (req rpcRequest) label() string {
	if req.Method != "call_tool" {
		return req.Method
	}
	var p toolCall
	if json.Unmarshal(req.Params, &p) != nil || p.Name == "" {
		return req.Method
	}
	var a blueprintArg
	if json.Unmarshal(p.Arguments, &a) == nil && a.Blueprint != "" {
		return req.Method + " " + p.Name + " " + a.Blueprint
	}
	return req.Method + " " + p.Name
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return badArgs("bad arguments: %v", err)
	}
	return nil
}
