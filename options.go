// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// DialFunc opens a new transport for a client.
type DialFunc func(ctx context.Context) (Conn, error)

// DialOption configures clients
type DialOption func(*dialOptions)

type dialOptions struct {
	version    Version
	generator  IDGenerator
	reviver    Reviver
	codec      Codec
	dispatcher Dispatcher
	log        zerolog.Logger
	observer   Observer
	reuse      bool
	dial       DialFunc
	conn       Conn
	owned      bool
	transport  string // "tcp", "ws", "grpc"
	wsOptions  *websocket.DialOptions
	grpcOpts   []grpc.DialOption
}

func newDialOptions(opts []DialOption) *dialOptions {
	o := &dialOptions{
		version:   Version2,
		generator: UUIDGenerator,
		codec:     defaultCodec,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.version = o.version.normalize()
	if o.observer == nil {
		o.observer = LogObserver{Log: o.log}
	}
	return o
}

// WithVersion selects the JSON-RPC version (default 2)
func WithVersion(v Version) DialOption {
	return func(o *dialOptions) { o.version = v }
}

// WithIDGenerator sets the generator for request ids (default UUIDGenerator)
func WithIDGenerator(g IDGenerator) DialOption {
	return func(o *dialOptions) { o.generator = g }
}

// WithReviver post-processes every inbound value
func WithReviver(r Reviver) DialOption {
	return func(o *dialOptions) { o.reviver = r }
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithDispatcher answers requests the peer sends over the client's
// connections.
func WithDispatcher(d Dispatcher) DialOption {
	return func(o *dialOptions) { o.dispatcher = d }
}

// WithLogger sets the client logger
func WithLogger(l zerolog.Logger) DialOption {
	return func(o *dialOptions) { o.log = l }
}

// WithObserver receives diagnostic events (default LogObserver)
func WithObserver(obs Observer) DialOption {
	return func(o *dialOptions) { o.observer = obs }
}

// WithReuseConnection keeps one stream connection open for all requests
// instead of dialing one per request.
func WithReuseConnection(reuse bool) DialOption {
	return func(o *dialOptions) { o.reuse = reuse }
}

// WithDialer sets how the client opens transports
func WithDialer(d DialFunc) DialOption {
	return func(o *dialOptions) { o.dial = d }
}

// WithConn attaches an existing transport. Unless owned is true the client
// never closes it. Attached transports are always reused.
func WithConn(c Conn, owned bool) DialOption {
	return func(o *dialOptions) {
		o.conn = c
		o.owned = owned
	}
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithWebSocketOptions sets options used when dialing WebSocket transports
func WithWebSocketOptions(opts *websocket.DialOptions) DialOption {
	return func(o *dialOptions) { o.wsOptions = opts }
}

// WithGRPCDialOptions sets options used when dialing gRPC transports
func WithGRPCDialOptions(opts ...grpc.DialOption) DialOption {
	return func(o *dialOptions) { o.grpcOpts = append(o.grpcOpts, opts...) }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	version   Version
	generator IDGenerator
	reviver   Reviver
	codec     Codec
	log       zerolog.Logger
	observer  Observer
	transport string
	accept    *websocket.AcceptOptions
}

func newServerOptions(opts []ServerOption) *serverOptions {
	o := &serverOptions{
		version:   Version2,
		generator: UUIDGenerator,
		codec:     defaultCodec,
		log:       zerolog.Nop(),
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.version = o.version.normalize()
	if o.observer == nil {
		o.observer = LogObserver{Log: o.log}
	}
	return o
}

// peerOptions are the options of the client each server connection gets.
func (o *serverOptions) peerOptions(d Dispatcher) *dialOptions {
	return &dialOptions{
		version:    o.version,
		generator:  o.generator,
		reviver:    o.reviver,
		codec:      o.codec,
		dispatcher: d,
		log:        o.log,
		observer:   o.observer,
		reuse:      true,
	}
}

// WithServerVersion selects the JSON-RPC version (default 2)
func WithServerVersion(v Version) ServerOption {
	return func(o *serverOptions) { o.version = v }
}

// WithServerIDGenerator sets the id generator used when server methods call
// back into the peer.
func WithServerIDGenerator(g IDGenerator) ServerOption {
	return func(o *serverOptions) { o.generator = g }
}

// WithServerReviver post-processes every inbound value
func WithServerReviver(r Reviver) ServerOption {
	return func(o *serverOptions) { o.reviver = r }
}

// WithServerCodec sets a custom codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerLogger sets the server logger
func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(o *serverOptions) { o.log = l }
}

// WithServerObserver receives diagnostic events of every server connection
func WithServerObserver(obs Observer) ServerOption {
	return func(o *serverOptions) { o.observer = obs }
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithAcceptOptions sets options used when upgrading WebSocket requests
func WithAcceptOptions(opts *websocket.AcceptOptions) ServerOption {
	return func(o *serverOptions) { o.accept = opts }
}
