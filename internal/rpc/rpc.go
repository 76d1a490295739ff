package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// JSON-RPC 2.0 error codes used by the gate. -32000 and -32001 are the
// server-defined codes for the two reject conditions; the rest are the
// standard protocol codes.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeInternal       = -32603
	CodeRateLimited    = -32000
	CodeIPBlocked      = -32001
)

// Request is the inbound JSON-RPC 2.0 envelope. Params are kept raw; the
// gate only ever looks at the tool name, the rest is forwarded untouched.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ErrInvalidRequest is returned when the body parses as JSON but is not a
// usable JSON-RPC request.
var ErrInvalidRequest = errors.New("invalid JSON-RPC request")

// Parse decodes a JSON-RPC request from a request body.
func Parse(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse JSON-RPC request: %w", err)
	}
	if req.Method == "" {
		return nil, ErrInvalidRequest
	}
	return &req, nil
}

// toolCallParams is the params shape of a tools/call request.
type toolCallParams struct {
	Name string `json:"name"`
}

// ToolName returns the tool being invoked. For tools/call requests this is
// the name inside params; for direct method calls it is the method itself.
func (r *Request) ToolName() string {
	if r.Method != "tools/call" {
		return r.Method
	}

	var params toolCallParams
	if err := json.Unmarshal(r.Params, &params); err != nil || params.Name == "" {
		return r.Method
	}
	return params.Name
}

// ErrorObject is the JSON-RPC 2.0 error member.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorResponse is a full JSON-RPC error response envelope.
type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   ErrorObject     `json:"error"`
}

// WriteError writes a JSON-RPC error response with the given HTTP status.
// A nil id is serialized as JSON null, which is what JSON-RPC 2.0 requires
// when the request id could not be determined.
func WriteError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if id == nil {
		id = json.RawMessage("null")
	}

	resp := errorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: ErrorObject{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	return json.NewEncoder(w).Encode(resp)
}
