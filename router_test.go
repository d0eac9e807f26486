// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchJSON runs msg through d and returns the encoded reply, or "" when
// there is none.
func dispatchJSON(t *testing.T, d Dispatcher, msg string) string {
	t.Helper()
	reply := d.Dispatch(context.Background(), nil, json.RawMessage(msg))
	if isNilReply(reply) {
		return ""
	}
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	return string(b)
}

func TestRouterDispatch(t *testing.T) {
	r := testRouter(Version2)
	r.Handle("oops", func(context.Context, *Client, json.RawMessage) (any, error) {
		return nil, errors.New("disk on fire")
	})
	r.Handle("panic", func(context.Context, *Client, json.RawMessage) (any, error) {
		panic("unreachable state")
	})

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{
			name: "call",
			msg:  `{"jsonrpc":"2.0","method":"add","params":[2,3],"id":7}`,
			want: `{"jsonrpc":"2.0","id":7,"result":5}`,
		},
		{
			name: "notification",
			msg:  `{"jsonrpc":"2.0","method":"add","params":[2,3]}`,
			want: "",
		},
		{
			name: "unknown method",
			msg:  `{"jsonrpc":"2.0","method":"nope","id":"a"}`,
			want: `{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"Method not found","data":"nope"}}`,
		},
		{
			name: "unknown notification",
			msg:  `{"jsonrpc":"2.0","method":"nope"}`,
			want: "",
		},
		{
			name: "invalid request",
			msg:  `{"jsonrpc":"2.0","method":1,"id":1}`,
			want: `{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid request"}}`,
		},
		{
			name: "application error passes through",
			msg:  `{"jsonrpc":"2.0","method":"fail","id":1}`,
			want: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`,
		},
		{
			name: "plain error is internal",
			msg:  `{"jsonrpc":"2.0","method":"oops","id":1}`,
			want: `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"Internal error","data":"disk on fire"}}`,
		},
		{
			name: "panic is internal",
			msg:  `{"jsonrpc":"2.0","method":"panic","id":1}`,
			want: `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"Internal error","data":"handler panic: unreachable state"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dispatchJSON(t, r, tt.msg)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestRouterRejectsInput(t *testing.T) {
	r := testRouter(Version2)

	tests := []struct {
		msg  string
		code int
	}{
		{`{"jsonrpc":"2.0","method":"add","params":{"a":1},"id":1}`, CodeInvalidParams},
		{`{"jsonrpc"`, CodeParseError},
	}
	for _, tt := range tests {
		var resp Response
		require.NoError(t, json.Unmarshal([]byte(dispatchJSON(t, r, tt.msg)), &resp))
		require.NotNil(t, resp.Error, tt.msg)
		assert.Equal(t, tt.code, resp.Error.Code, tt.msg)
	}
}

func TestRouterBatch(t *testing.T) {
	r := testRouter(Version2)

	got := dispatchJSON(t, r, `[
		{"jsonrpc":"2.0","method":"add","params":[1,2],"id":1},
		{"jsonrpc":"2.0","method":"add","params":[1,1]},
		{"jsonrpc":"2.0","method":"nope","id":2},
		7
	]`)
	assert.JSONEq(t, `[
		{"jsonrpc":"2.0","id":1,"result":3},
		{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found","data":"nope"}},
		{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid request"}}
	]`, got)

	assert.Empty(t, dispatchJSON(t, r, `[{"jsonrpc":"2.0","method":"add","params":[1]}]`))
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid request"}}`,
		dispatchJSON(t, r, `[]`))
}

func TestRouterVersion1(t *testing.T) {
	r := testRouter(Version1)

	assert.JSONEq(t,
		`{"id":1,"result":5,"error":null}`,
		dispatchJSON(t, r, `{"method":"add","params":[2,3],"id":1}`))
	assert.JSONEq(t,
		`{"id":1,"error":{"code":-32601,"message":"Method not found","data":"nope"}}`,
		dispatchJSON(t, r, `{"method":"nope","params":[],"id":1}`))
	assert.Empty(t, dispatchJSON(t, r, `{"method":"add","params":[1],"id":null}`))

	// batches are a version 2 feature
	assert.JSONEq(t,
		`{"id":null,"error":{"code":-32600,"message":"Invalid request"}}`,
		dispatchJSON(t, r, `[{"method":"add","params":[1],"id":1}]`))
}

func TestHandleNotification(t *testing.T) {
	r := NewRouter(Version2)
	got := make(chan json.RawMessage, 1)
	r.HandleNotification("log", func(_ context.Context, _ *Client, params json.RawMessage) {
		got <- params
	})

	assert.Empty(t, dispatchJSON(t, r, `{"jsonrpc":"2.0","method":"log","params":["hi"]}`))
	assert.JSONEq(t, `["hi"]`, string(<-got))

	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":1,"result":null}`,
		dispatchJSON(t, r, `{"jsonrpc":"2.0","method":"log","id":1}`))
	assert.Nil(t, <-got)
}
