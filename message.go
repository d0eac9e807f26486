// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Version selects the JSON-RPC wire dialect. It is fixed per client or
// server instance, never per message.
type Version int

const (
	Version1 Version = 1
	Version2 Version = 2
)

const versionTag = "2.0"

func (v Version) normalize() Version {
	if v == Version1 {
		return Version1
	}
	return Version2
}

// Request is an outbound or decoded JSON-RPC request. A nil ID marks a
// notification: no reply is expected or awaited.
type Request struct {
	Version Version
	Method  string
	Params  any
	ID      any
}

// NewRequest builds a request whose id is produced by gen. A nil gen falls
// back to UUIDGenerator.
func NewRequest(version Version, method string, params any, gen IDGenerator) (*Request, error) {
	if gen == nil {
		gen = UUIDGenerator
	}
	req, err := newRequest(version, method, params)
	if err != nil {
		return nil, err
	}
	req.ID = gen()
	return req, nil
}

// NewRequestWithID builds a request with an explicit id. A nil id is an
// explicit notification.
func NewRequestWithID(version Version, method string, params any, id any) (*Request, error) {
	req, err := newRequest(version, method, params)
	if err != nil {
		return nil, err
	}
	req.ID = id
	return req, nil
}

// NewNotification builds a request that expects no reply.
func NewNotification(version Version, method string, params any) (*Request, error) {
	return NewRequestWithID(version, method, params, nil)
}

func newRequest(version Version, method string, params any) (*Request, error) {
	if method == "" {
		return nil, ErrInvalidMethod
	}
	if !validParams(params) {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidParams, params)
	}
	return &Request{
		Version: version.normalize(),
		Method:  method,
		Params:  params,
	}, nil
}

// IsNotification reports whether no reply is expected for r.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	if r.Version.normalize() == Version1 {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		return json.Marshal(struct {
			Method string `json:"method"`
			Params any    `json:"params"`
			ID     any    `json:"id"`
		}{r.Method, params, r.ID})
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
		ID      any    `json:"id"`
	}{versionTag, r.Method, r.Params, r.ID})
}

// Response is a JSON-RPC reply. When Error is set the Result is ignored.
type Response struct {
	Version Version
	ID      any
	Result  any
	Error   *Error
}

// NewResponse builds a response. An error takes precedence over a result.
func NewResponse(version Version, id any, result any, rpcErr *Error) *Response {
	resp := &Response{Version: version.normalize(), ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Version.normalize() == Version1 {
		if r.Error != nil {
			return json.Marshal(struct {
				ID    any    `json:"id"`
				Error *Error `json:"error"`
			}{r.ID, r.Error})
		}
		return json.Marshal(struct {
			ID     any    `json:"id"`
			Result any    `json:"result"`
			Error  *Error `json:"error"`
		}{r.ID, r.Result, nil})
	}
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			ID      any    `json:"id"`
			Error   *Error `json:"error"`
		}{versionTag, r.ID, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      any    `json:"id"`
		Result  any    `json:"result"`
	}{versionTag, r.ID, r.Result})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	v, err := ParseMessage(data, nil)
	if err != nil {
		return err
	}
	resp, err := ParseResponse(v.Value)
	if err != nil {
		return err
	}
	*r = *resp
	return nil
}

// DecodeResult decodes the result member into out.
func (r *Response) DecodeResult(codec Codec, out any) error {
	if codec == nil {
		codec = defaultCodec
	}
	raw, ok := r.Result.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(r.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return codec.Decode(raw, out)
}

// ParseResponse converts a decoded JSON object into a Response.
func ParseResponse(msg any) (*Response, error) {
	obj, ok := msg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("jsonrpc: response must be an object, got %T", msg)
	}
	resp := &Response{Version: Version1, ID: obj["id"], Result: obj["result"]}
	if obj["jsonrpc"] == versionTag {
		resp.Version = Version2
	}
	switch e := obj["error"].(type) {
	case nil:
	case map[string]any:
		resp.Error = errorFromObject(e)
		resp.Result = nil
	default:
		// version 1 allows any non-null error value
		resp.Error = &Error{Message: fmt.Sprint(e), Data: e}
		resp.Result = nil
	}
	return resp, nil
}

func errorFromObject(obj map[string]any) *Error {
	e := &Error{Data: obj["data"]}
	if code, ok := integerValue(obj["code"]); ok {
		e.Code = int(code)
	}
	if msg, ok := obj["message"].(string); ok {
		e.Message = msg
	}
	return e
}

// requestFromObject converts a decoded request object into a Request.
// Callers validate the object first.
func requestFromObject(obj map[string]any, version Version) *Request {
	method, _ := obj["method"].(string)
	return &Request{
		Version: version.normalize(),
		Method:  method,
		Params:  obj["params"],
		ID:      obj["id"],
	}
}

// IsBatch reports whether msg is a batch (an array of requests).
func IsBatch(msg any) bool {
	_, ok := msg.([]any)
	return ok
}

// IsNotification reports whether msg is a single request with an absent or
// null id.
func IsNotification(msg any) bool {
	obj, ok := msg.(map[string]any)
	if !ok {
		return false
	}
	return obj["id"] == nil
}

// IsResponse reports whether msg is shaped like a reply: an object without a
// method member.
func IsResponse(msg any) bool {
	obj, ok := msg.(map[string]any)
	if !ok {
		return false
	}
	_, hasMethod := obj["method"]
	return !hasMethod
}

// IsValidRequest checks msg against the request shape of the given version.
// Version 1 requires array params and a present, possibly null, id. Version 2
// requires the version tag, a string method, and array, object or absent
// params.
func IsValidRequest(msg any, version Version) bool {
	obj, ok := msg.(map[string]any)
	if !ok {
		return false
	}
	if _, ok := obj["method"].(string); !ok {
		return false
	}
	if version.normalize() == Version1 {
		if _, ok := obj["params"].([]any); !ok {
			return false
		}
		_, hasID := obj["id"]
		return hasID
	}
	if obj["jsonrpc"] != versionTag {
		return false
	}
	if params, ok := obj["params"]; ok {
		switch params.(type) {
		case []any, map[string]any:
		default:
			return false
		}
	}
	return isIDValue(obj["id"])
}

// IsValidError checks an error member against the given version. Version 1
// accepts any non-null value; version 2 requires an integer code and a
// string message.
func IsValidError(e any, version Version) bool {
	if version.normalize() == Version1 {
		if e == nil {
			return false
		}
		if ptr, ok := e.(*Error); ok {
			return ptr != nil
		}
		return true
	}
	switch v := e.(type) {
	case *Error:
		return v != nil
	case Error:
		return true
	case map[string]any:
		if _, ok := integerValue(v["code"]); !ok {
			return false
		}
		_, ok := v["message"].(string)
		return ok
	default:
		return false
	}
}

func isIDValue(id any) bool {
	switch id.(type) {
	case nil, string, json.Number, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func integerValue(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

func validParams(params any) bool {
	if params == nil {
		return true
	}
	if raw, ok := params.(json.RawMessage); ok {
		raw = bytes.TrimSpace(raw)
		return len(raw) > 0 && (raw[0] == '[' || raw[0] == '{')
	}
	t := reflect.TypeOf(params)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	case reflect.Array, reflect.Map, reflect.Struct:
		return true
	default:
		return false
	}
}

// idKey returns the correlation key of an id: its compact JSON encoding, so
// 7, 7.0 and json.Number("7") all correlate. Integers keep their exact value.
func idKey(id any) (string, bool) {
	if id == nil {
		return "", false
	}
	if n, ok := id.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return strconv.FormatUint(u, 10), true
		}
		if f, err := n.Float64(); err == nil {
			id = f
		}
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", false
	}
	return string(b), true
}
