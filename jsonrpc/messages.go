package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version string carried on every message.
const Version = "2.0"

// MessageType classifies a decoded AnyMessage.
type MessageType int

const (
	// MessageTypeUnknown indicates the message did not match any known shape.
	MessageTypeUnknown MessageType = iota
	// MessageTypeRequest indicates the message has a method and an id.
	MessageTypeRequest
	// MessageTypeNotification indicates the message has a method and no id.
	MessageTypeNotification
	// MessageTypeResponse indicates the message has an id and a result or error.
	MessageTypeResponse
)

// Message is a raw, not-yet-classified JSON-RPC message as received from a
// transport.
type Message []byte

// AnyMessage is the union decoding of every JSON-RPC message shape: request,
// notification, or response. Use Type to discriminate and AsRequest /
// AsResponse to narrow.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON enforces JSON-RPC 2.0 message shape rules: a message must
// carry jsonrpc:"2.0" and must be either a request/notification (method
// present, or an id present with no result/error — a request missing its
// method, left for the dispatcher to reject as METHOD_NOT_FOUND) or a
// response (result or error present), never both and never neither.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type alias AnyMessage
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding JSON-RPC message: %w", err)
	}

	if raw.JSONRPCVersion != Version {
		return fmt.Errorf("unsupported JSON-RPC version: %q", raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != ""
	hasResult := raw.Result != nil
	hasError := raw.Error != nil
	hasID := raw.ID != nil && !raw.ID.IsNil()

	if hasMethod && (hasResult || hasError) {
		return fmt.Errorf("JSON-RPC message cannot carry both a method and a result/error")
	}
	if hasResult && hasError {
		return fmt.Errorf("JSON-RPC message cannot carry both a result and an error")
	}
	if !hasMethod && !hasResult && !hasError && !hasID {
		return fmt.Errorf("JSON-RPC message must carry a method, a result, an error, or an id")
	}

	*m = AnyMessage(raw)
	return nil
}

// Type classifies the message. A message with an id but no method and no
// result/error is classified as a request with an empty method, letting the
// dispatcher reject it as METHOD_NOT_FOUND while preserving the id, rather
// than being rejected here as an unparseable message.
func (m *AnyMessage) Type() MessageType {
	hasID := m.ID != nil && !m.ID.IsNil()
	switch {
	case m.Method != "" && hasID:
		return MessageTypeRequest
	case m.Method != "" && !hasID:
		return MessageTypeNotification
	case m.Result != nil || m.Error != nil:
		return MessageTypeResponse
	case hasID:
		return MessageTypeRequest
	default:
		return MessageTypeUnknown
	}
}

// AsRequest narrows the message into a Request, returning ok=false if the
// message is not a request or notification.
func (m *AnyMessage) AsRequest() (Request, bool) {
	switch m.Type() {
	case MessageTypeRequest, MessageTypeNotification:
		return Request{
			JSONRPCVersion: m.JSONRPCVersion,
			Method:         m.Method,
			Params:         m.Params,
			ID:             m.ID,
		}, true
	default:
		return Request{}, false
	}
}

// AsResponse narrows the message into a Response, returning ok=false if the
// message is not a response.
func (m *AnyMessage) AsResponse() (Response, bool) {
	if m.Type() != MessageTypeResponse {
		return Response{}, false
	}
	return Response{
		JSONRPCVersion: m.JSONRPCVersion,
		Result:         m.Result,
		Error:          m.Error,
		ID:             m.ID,
	}, true
}

// Request is a JSON-RPC request or notification (when ID is nil).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether this Request carries no id.
func (r Request) IsNotification() bool {
	return r.ID == nil || r.ID.IsNil()
}

// Response is a JSON-RPC response carrying exactly one of Result or Error.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful Response by marshaling result.
func NewResultResponse(id *RequestID, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling JSON-RPC result: %w", err)
	}
	return Response{
		JSONRPCVersion: Version,
		Result:         raw,
		ID:             id,
	}, nil
}

// NewErrorResponse builds a failed Response from an Error.
func NewErrorResponse(id *RequestID, rpcErr Error) Response {
	return Response{
		JSONRPCVersion: Version,
		Error:          &rpcErr,
		ID:             id,
	}
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
