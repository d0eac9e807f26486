// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestWireForm(t *testing.T) {
	tests := []struct {
		name string
		req  func() (*Request, error)
		want string
	}{
		{
			name: "v2 call",
			req:  func() (*Request, error) { return NewRequestWithID(Version2, "add", []int{2, 3}, 7) },
			want: `{"jsonrpc":"2.0","method":"add","params":[2,3],"id":7}`,
		},
		{
			name: "v2 without params",
			req:  func() (*Request, error) { return NewRequestWithID(Version2, "ping", nil, "a") },
			want: `{"jsonrpc":"2.0","method":"ping","id":"a"}`,
		},
		{
			name: "v2 notification",
			req:  func() (*Request, error) { return NewNotification(Version2, "tick", map[string]int{"n": 1}) },
			want: `{"jsonrpc":"2.0","method":"tick","params":{"n":1},"id":null}`,
		},
		{
			name: "v1 notification defaults params",
			req:  func() (*Request, error) { return NewNotification(Version1, "tick", nil) },
			want: `{"method":"tick","params":[],"id":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.req()
			require.NoError(t, err)
			b, err := json.Marshal(req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestNewRequestValidation(t *testing.T) {
	_, err := NewRequest(Version2, "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidMethod)

	for _, params := range []any{5, "str", true, []byte("x"), json.RawMessage(`7`)} {
		_, err := NewRequest(Version2, "m", params, nil)
		assert.ErrorIs(t, err, ErrInvalidParams, "params %T", params)
	}

	type point struct{ X, Y int }
	for _, params := range []any{nil, []any{1}, [2]int{1, 2}, map[string]any{}, point{}, &point{}, json.RawMessage(`{"a":1}`)} {
		req, err := NewRequest(Version2, "m", params, nil)
		require.NoError(t, err, "params %T", params)
		assert.NotNil(t, req.ID)
		assert.False(t, req.IsNotification())
	}
}

func TestNewRequestUsesGenerator(t *testing.T) {
	gen := SequenceGenerator(10)
	a, err := NewRequest(Version2, "m", nil, gen)
	require.NoError(t, err)
	b, err := NewRequest(Version2, "m", nil, gen)
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.ID)
	assert.Equal(t, int64(11), b.ID)
}

func TestResponseWireForm(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "v2 result",
			resp: NewResponse(Version2, 1, 5, nil),
			want: `{"jsonrpc":"2.0","id":1,"result":5}`,
		},
		{
			name: "v2 null result",
			resp: NewResponse(Version2, 1, nil, nil),
			want: `{"jsonrpc":"2.0","id":1,"result":null}`,
		},
		{
			name: "v2 error wins over result",
			resp: NewResponse(Version2, nil, 5, NewError(CodeParseError, "", nil)),
			want: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
		},
		{
			name: "v1 result carries null error",
			resp: NewResponse(Version1, 1, 5, nil),
			want: `{"id":1,"result":5,"error":null}`,
		},
		{
			name: "v1 error",
			resp: NewResponse(Version1, 1, nil, NewError(CodeMethodNotFound, "", "nope")),
			want: `{"id":1,"error":{"code":-32601,"message":"Method not found","data":"nope"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestRequestRoundTripValidates(t *testing.T) {
	for _, v := range []Version{Version1, Version2} {
		req, err := NewRequest(v, "add", []int{1, 2}, SequenceGenerator(1))
		require.NoError(t, err)
		b, err := json.Marshal(req)
		require.NoError(t, err)

		in, err := ParseMessage(b, nil)
		require.NoError(t, err)
		assert.True(t, IsValidRequest(in.Value, v), "version %d", v)
		assert.False(t, IsResponse(in.Value))
	}
}

func TestErrorResponseOmitsResult(t *testing.T) {
	for _, v := range []Version{Version1, Version2} {
		b, err := json.Marshal(NewResponse(v, 3, "ignored", NewError(CodeInternalError, "", nil)))
		require.NoError(t, err)

		in, err := ParseMessage(b, nil)
		require.NoError(t, err)
		obj := in.Value.(map[string]any)
		assert.NotContains(t, obj, "result", "version %d", v)
		assert.True(t, IsValidError(obj["error"], v))
	}
}

func TestIsValidRequest(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		version Version
		want    bool
	}{
		{"v1 call", `{"method":"m","params":[],"id":1}`, Version1, true},
		{"v1 null id", `{"method":"m","params":[1],"id":null}`, Version1, true},
		{"v1 missing id", `{"method":"m","params":[]}`, Version1, false},
		{"v1 object params", `{"method":"m","params":{},"id":1}`, Version1, false},
		{"v1 missing params", `{"method":"m","id":1}`, Version1, false},
		{"v2 call", `{"jsonrpc":"2.0","method":"m","params":{"a":1},"id":"x"}`, Version2, true},
		{"v2 notification", `{"jsonrpc":"2.0","method":"m"}`, Version2, true},
		{"v2 missing tag", `{"method":"m","id":1}`, Version2, false},
		{"v2 wrong tag", `{"jsonrpc":"1.0","method":"m","id":1}`, Version2, false},
		{"v2 scalar params", `{"jsonrpc":"2.0","method":"m","params":"x","id":1}`, Version2, false},
		{"v2 object id", `{"jsonrpc":"2.0","method":"m","id":{}}`, Version2, false},
		{"numeric method", `{"jsonrpc":"2.0","method":1,"id":1}`, Version2, false},
		{"array", `[{"jsonrpc":"2.0","method":"m","id":1}]`, Version2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseMessage([]byte(tt.msg), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IsValidRequest(in.Value, tt.version))
		})
	}
}

func TestIsValidError(t *testing.T) {
	assert.True(t, IsValidError("anything", Version1))
	assert.False(t, IsValidError(nil, Version1))
	assert.False(t, IsValidError((*Error)(nil), Version1))

	assert.True(t, IsValidError(NewError(1, "x", nil), Version2))
	assert.True(t, IsValidError(map[string]any{"code": json.Number("-32000"), "message": "x"}, Version2))
	assert.False(t, IsValidError(map[string]any{"code": json.Number("1.5"), "message": "x"}, Version2))
	assert.False(t, IsValidError(map[string]any{"code": json.Number("1")}, Version2))
	assert.False(t, IsValidError("anything", Version2))
}

func TestMessageShapes(t *testing.T) {
	batch, err := ParseMessage([]byte(`[{"jsonrpc":"2.0","method":"m"}]`), nil)
	require.NoError(t, err)
	assert.True(t, IsBatch(batch.Value))
	assert.False(t, IsNotification(batch.Value))

	note, err := ParseMessage([]byte(`{"jsonrpc":"2.0","method":"m","id":null}`), nil)
	require.NoError(t, err)
	assert.True(t, IsNotification(note.Value))
	assert.False(t, IsResponse(note.Value))

	resp, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":true}`), nil)
	require.NoError(t, err)
	assert.True(t, IsResponse(resp.Value))
}

func TestParseResponse(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":7,"result":5}`), &resp))
	assert.Equal(t, Version2, resp.Version)
	assert.Equal(t, json.Number("7"), resp.ID)
	assert.Equal(t, json.Number("5"), resp.Result)
	assert.Nil(t, resp.Error)

	var sum int
	require.NoError(t, resp.DecodeResult(nil, &sum))
	assert.Equal(t, 5, sum)

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found","data":"x"}}`), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "x", resp.Error.Data)
	assert.Nil(t, resp.Result)

	// version 1 allows a bare error value
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"result":null,"error":"boom"}`), &resp))
	assert.Equal(t, Version1, resp.Version)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)

	_, err := ParseResponse([]any{})
	assert.Error(t, err)
}

func TestIDKey(t *testing.T) {
	seven, ok := idKey(7)
	require.True(t, ok)
	for _, id := range []any{json.Number("7"), 7.0, int64(7), json.Number("7.0")} {
		k, ok := idKey(id)
		require.True(t, ok)
		assert.Equal(t, seven, k, "id %v", id)
	}

	str, ok := idKey("7")
	require.True(t, ok)
	assert.NotEqual(t, seven, str)

	_, ok = idKey(nil)
	assert.False(t, ok)
}

func TestIDKeyLargeIntegers(t *testing.T) {
	tests := []struct {
		sent any
		got  json.Number
	}{
		{int64(9007199254740993), "9007199254740993"},
		{int64(-9007199254740993), "-9007199254740993"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{json.Number("9007199254740993"), "9007199254740993"},
	}
	for _, tt := range tests {
		want, ok := idKey(tt.sent)
		require.True(t, ok)
		k, ok := idKey(tt.got)
		require.True(t, ok)
		assert.Equal(t, want, k, "id %v", tt.sent)
	}

	a, _ := idKey(json.Number("9007199254740993"))
	b, _ := idKey(json.Number("9007199254740992"))
	assert.NotEqual(t, a, b)
}

func TestNewErrorDefaults(t *testing.T) {
	err := NewError(CodeInvalidRequest, "", nil)
	assert.Equal(t, "Invalid request", err.Message)
	assert.Equal(t, "jsonrpc error -32600: Invalid request", err.Error())

	custom := NewError(-32000, "custom", 1)
	assert.Equal(t, "custom", custom.Message)

	var target *Error
	assert.True(t, errors.As(error(custom), &target))
}
