package dispatch

import (
	"fmt"

	"github.com/ggoodman/dispatchmcp/jsonrpc"
)

// RpcError is the only first-class error type the dispatcher understands.
// A handler or middleware that returns one controls the exact JSON-RPC
// error surfaced to the client; any other error is coerced to
// ErrorCodeInternalError.
type RpcError struct {
	Code    jsonrpc.ErrorCode
	Message string
	Data    any
}

// Error implements the error interface.
func (e *RpcError) Error() string {
	return fmt.Sprintf("dispatch error %d: %s", e.Code, e.Message)
}

// NewRpcError builds an RpcError with the given code, message, and optional
// data payload.
func NewRpcError(code jsonrpc.ErrorCode, message string, data any) *RpcError {
	return &RpcError{Code: code, Message: message, Data: data}
}

// MethodNotFound builds the standard METHOD_NOT_FOUND error for an unknown
// method, tool, or resource, carrying the offending name or URI in data
// under the given key (e.g. "method", "name", "uri"). An unknown prompt is
// reported as INVALID_PARAMS instead.
func MethodNotFound(key, value string) *RpcError {
	return NewRpcError(jsonrpc.ErrorCodeMethodNotFound, "Method not found", map[string]string{key: value})
}

// InvalidParams builds the standard INVALID_PARAMS error.
func InvalidParams(message string, data any) *RpcError {
	return NewRpcError(jsonrpc.ErrorCodeInvalidParams, message, data)
}

// NotImplemented builds the standard INTERNAL_ERROR used for stubbed
// methods (resource subscriptions, completion) that are intentionally not
// implemented by this core.
func NotImplemented(method string) *RpcError {
	return NewRpcError(jsonrpc.ErrorCodeInternalError, "Not implemented", map[string]string{"method": method})
}

// toRpcError coerces any error into an *RpcError: RpcErrors pass through
// unchanged, everything else becomes INTERNAL_ERROR carrying the error's
// message. This is the single seam where foreign errors from handler or
// middleware code enter the JSON-RPC error vocabulary.
func toRpcError(err error) *RpcError {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*RpcError); ok {
		return rpcErr
	}
	return NewRpcError(jsonrpc.ErrorCodeInternalError, "Internal error", map[string]string{"message": err.Error()})
}

// OnErrorFunc observes an error produced by a handler or middleware before
// it is coerced into a response. Returning a non-nil *RpcError overrides the
// response the dispatcher would otherwise synthesize; returning nil leaves
// the default coercion (toRpcError) in place. A panicking hook is treated
// the same as a nil return: the default policy applies.
type OnErrorFunc func(method string, err error) *RpcError

// safeOnError invokes fn, recovering from a panic so a broken hook can never
// take down dispatch or leave a response half-written; a panic is treated
// like a nil return, falling through to the default error coercion.
func safeOnError(fn OnErrorFunc, method string, err error) (override *RpcError) {
	if fn == nil || err == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			override = nil
		}
	}()
	return fn(method, err)
}
