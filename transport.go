// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transport types
const (
	TransportTCP       = "tcp"  // concatenated JSON over a byte stream, default
	TransportWebSocket = "ws"   // one message per WebSocket text frame
	TransportGRPC      = "grpc" // one message per frame of a bidi stream
)

// DefaultTransport is the default transport type (TCP)
const DefaultTransport = TransportTCP

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (Conn, error)
type serveFunc func(ctx context.Context, s *Server, ln net.Listener) error

type transport struct {
	dial  dialFunc
	serve serveFunc
	// persistent transports always reuse one connection per client
	persistent bool
}

var (
	transportsMu sync.RWMutex
	transports   = map[string]transport{
		TransportTCP:       {dialTCP, serveTCP, false},
		TransportWebSocket: {dialWS, serveWS, true},
		TransportGRPC:      {dialGRPC, serveGRPC, true},
	}
)

// registerTransport registers a new transport
func registerTransport(name string, t transport) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = t
}

func lookupTransport(name string) (transport, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	return t, ok
}

// AvailableTransports returns the sorted list of available transport types
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	_, ok := lookupTransport(name)
	return ok
}

func dialTCP(ctx context.Context, addr string, o *dialOptions) (Conn, error) {
	return DialStream(ctx, strings.TrimPrefix(addr, "tcp://"), o.reviver)
}

func serveTCP(ctx context.Context, s *Server, ln net.Listener) error {
	return s.ServeStream(ctx, ln)
}

func dialWS(ctx context.Context, addr string, o *dialOptions) (Conn, error) {
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		addr = "ws://" + addr
	}
	return DialWebSocket(ctx, addr, o.reviver, o.wsOptions)
}

func serveWS(ctx context.Context, s *Server, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = hs.Close()
	}()
	err := hs.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Conn, error) {
	return DialGRPC(ctx, strings.TrimPrefix(addr, "grpc://"), o.reviver, o.grpcOpts...)
}
