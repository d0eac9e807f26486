// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCodec(t *testing.T) {
	c := frameCodec{}
	assert.Equal(t, grpcSubtype, c.Name())

	b, err := c.Marshal([]byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(b))

	in := []byte(`[1]`)
	b, err = c.Marshal(&in)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(b))

	_, err = c.Marshal("nope")
	assert.Error(t, err)

	var out []byte
	require.NoError(t, c.Unmarshal([]byte(`{"id":2}`), &out))
	assert.Equal(t, `{"id":2}`, string(out))
	assert.Error(t, c.Unmarshal([]byte(`{}`), new(string)))
}

func TestGRPCCall(t *testing.T) {
	ctx := testContext(t)
	ln := startServer(t, testRouter(Version2), WithServerTransport(TransportGRPC))

	client, err := Dial(ctx, "grpc://"+ln.Addr())
	require.NoError(t, err)
	defer client.Close()

	var sum int
	require.NoError(t, client.CallResult(ctx, "add", []int{20, 22}, &sum))
	assert.Equal(t, 42, sum)
	assert.Equal(t, 1, ln.Server().Peers())

	err = client.CallResult(ctx, "fail", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)

	require.NoError(t, client.Notify(ctx, "add", []int{1}))
}

func TestGRPCPeerToPeer(t *testing.T) {
	ctx := testContext(t)
	ln := startServer(t, testRouter(Version2), WithServerTransport(TransportGRPC))

	local := NewRouter(Version2)
	local.Handle("pong", func(context.Context, *Client, json.RawMessage) (any, error) {
		return "pong", nil
	})
	client, err := Dial(ctx, ln.Addr(), WithTransport(TransportGRPC), WithDispatcher(local))
	require.NoError(t, err)
	defer client.Close()

	var got string
	require.NoError(t, client.CallResult(ctx, "ping", nil, &got))
	assert.Equal(t, "got pong", got)
}

func TestGRPCClientCloseEndsPeer(t *testing.T) {
	ctx := testContext(t)
	ln := startServer(t, testRouter(Version2), WithServerTransport(TransportGRPC))

	client, err := Dial(ctx, "grpc://"+ln.Addr())
	require.NoError(t, err)

	var sum int
	require.NoError(t, client.CallResult(ctx, "add", []int{1, 1}, &sum))
	require.Equal(t, 1, ln.Server().Peers())

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return ln.Server().Peers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
