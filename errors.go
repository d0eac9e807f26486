// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"errors"
	"fmt"
)

// Reserved JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var codeMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid method parameter(s)",
	CodeInternalError:  "Internal error",
}

var (
	ErrClientClosed     = errors.New("jsonrpc: client closed")
	ErrNoConnection     = errors.New("jsonrpc: no connection and no dialer configured")
	ErrInvalidMethod    = errors.New("jsonrpc: method must be a non-empty string")
	ErrInvalidParams    = errors.New("jsonrpc: params must be an array, an object or omitted")
	ErrUnknownTransport = errors.New("jsonrpc: unknown transport")
	ErrDuplicateID      = errors.New("jsonrpc: request id already pending")
)

// Messages used when failing requests that will never see a reply.
const (
	msgCancelPending = "Cancelling pending requests"
	msgSocketEnded   = "Socket ended"
)

// Error is a JSON-RPC error object. It is returned unchanged to callers when
// a remote method fails, and synthesized locally for transport faults.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewError builds an error object. An empty message is replaced by the
// default message of a reserved code.
func NewError(code int, message string, data any) *Error {
	if message == "" {
		message = codeMessages[code]
	}
	return &Error{Code: code, Message: message, Data: data}
}

func (e *Error) Error() string {
	if e.Data == nil {
		return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("jsonrpc error %d: %s (%v)", e.Code, e.Message, e.Data)
}

// transportError converts an underlying connection fault into the synthetic
// error delivered to every request awaiting a reply on that connection.
func transportError(err error) *Error {
	return NewError(CodeInternalError, err.Error(), nil)
}

// ParseError reports malformed JSON received from the peer.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "jsonrpc: parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ClosedError reports an orderly or peer-initiated end of a message socket.
type ClosedError struct {
	Code   int
	Reason string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("jsonrpc: connection closed (%d): %s", e.Code, e.Reason)
}
