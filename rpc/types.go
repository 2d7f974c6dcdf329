// Package rpc exposes blockchain state via a JSON-RPC 2.0 HTTP endpoint and
// streams game logs over websockets.
package rpc

import (
	"encoding/json"

	"github.com/tolelom/battlechain/events"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
)

// Result shapes shared with the client.

type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type SendTxResult struct {
	TxID string `json:"tx_id"`
}

// GameEventsResult is a slice of a game's log starting at From.
type GameEventsResult struct {
	From   uint64         `json:"from"`
	Events []events.Event `json:"events"`
}

// StreamMessage is one websocket frame on /ws.
type StreamMessage struct {
	Seq   uint64       `json:"seq"`
	Event events.Event `json:"event"`
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
