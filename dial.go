// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Dial creates a client for addr. The transport comes from WithTransport or
// the address scheme (tcp://, ws://, wss://, grpc://), defaulting to TCP.
//
// WebSocket and gRPC clients, and TCP clients with WithReuseConnection, are
// connected before Dial returns and reconnect on the next request after the
// connection ends. Other TCP clients open one connection per request.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Client, error) {
	o := newDialOptions(opts)
	name := o.transport
	if name == "" {
		name = transportFromScheme(addr)
	}
	t, ok := lookupTransport(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}

	o.log = o.log.With().Str("transport", name).Logger()
	if o.dial == nil {
		o.dial = func(ctx context.Context) (Conn, error) {
			return t.dial(ctx, addr, o)
		}
	}
	if t.persistent {
		o.reuse = true
	}

	c := newClient(o)
	switch {
	case o.conn != nil:
		_ = c.Attach(o.conn, o.owned)
	case o.reuse:
		tr, err := o.dial(ctx)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		_ = c.Attach(tr, true)
	}
	return c, nil
}

func transportFromScheme(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return TransportWebSocket
	case strings.HasPrefix(addr, "grpc://"):
		return TransportGRPC
	default:
		return DefaultTransport
	}
}

// Listener is a Server bound to a TCP address with a transport.
type Listener struct {
	server    *Server
	ln        net.Listener
	transport transport
}

// Listen binds addr for the transport chosen with WithServerTransport
// (default TCP). Call Serve to start answering requests with d.
func Listen(addr string, d Dispatcher, opts ...ServerOption) (*Listener, error) {
	s := NewServer(d, opts...)
	t, ok := lookupTransport(s.opts.transport)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, s.opts.transport)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.log = s.log.With().Str("transport", s.opts.transport).Logger()
	return &Listener{
		server:    s,
		ln:        ln,
		transport: t,
	}, nil
}

// Serve blocks until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	return l.transport.serve(ctx, l.server, l.ln)
}

// Close stops accepting and closes every peer connection.
func (l *Listener) Close() error {
	err := l.server.Close()
	if lnErr := l.ln.Close(); lnErr != nil && !errors.Is(lnErr, net.ErrClosed) {
		err = errors.Join(err, lnErr)
	}
	return err
}

// Addr returns the listener address
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Server returns the server behind l.
func (l *Listener) Server() *Server {
	return l.server
}
