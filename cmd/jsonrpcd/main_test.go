// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/jsonrpc"
)

func dispatch(t *testing.T, r *jsonrpc.Router, msg string) *jsonrpc.Response {
	t.Helper()
	reply := r.Dispatch(context.Background(), nil, json.RawMessage(msg))
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(b, &resp))
	return &resp
}

func TestDemoMethods(t *testing.T) {
	r := newRouter(jsonrpc.Version2)

	resp := dispatch(t, r, `{"jsonrpc":"2.0","method":"add","params":[1.5,2],"id":1}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, json.Number("3.5"), resp.Result)

	resp = dispatch(t, r, `{"jsonrpc":"2.0","method":"delay","params":[1,2],"id":2}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)

	// without a connection there is no peer to call back
	resp = dispatch(t, r, `{"jsonrpc":"2.0","method":"ping","id":3}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
}

func TestRun(t *testing.T) {
	cfg := defaultConfig()
	cfg.Listeners = []ListenerConfig{
		{Address: "127.0.0.1:0", Transport: jsonrpc.TransportTCP},
		{Address: "127.0.0.1:0", Transport: jsonrpc.TransportWebSocket},
	}
	cfg.Metrics = true

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
