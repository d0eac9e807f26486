// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// The gRPC transport tunnels JSON-RPC messages through one bidirectional
// stream per connection. Each gRPC message carries one JSON-RPC message or
// batch, unchanged.
const (
	grpcServiceName = "luxfi.jsonrpc.Transport"
	grpcMethod      = "/" + grpcServiceName + "/Exchange"
	grpcSubtype     = "jsonrpc"
)

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// frameCodec passes message bytes through untouched.
type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("jsonrpc frame codec: unsupported type %T", v)
	}
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("jsonrpc frame codec: unsupported type %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (frameCodec) Name() string {
	return grpcSubtype
}

var exchangeDesc = grpc.StreamDesc{
	StreamName:    "Exchange",
	ServerStreams: true,
	ClientStreams: true,
}

type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type grpcConn struct {
	stream  grpcStream
	reviver Reviver
	reads   backgroundRead

	// client side
	closeSend func() error
	cancel    context.CancelFunc
	cc        *grpc.ClientConn

	// server side; closed when the handler may return
	done      chan struct{}
	closeOnce sync.Once
}

// DialGRPC opens an Exchange stream to target. Plaintext credentials are used
// unless opts override them.
func DialGRPC(ctx context.Context, target string, reviver Reviver, opts ...grpc.DialOption) (Conn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}

	// The stream outlives the dial context.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := cc.NewStream(streamCtx, &exchangeDesc, grpcMethod, grpc.CallContentSubtype(grpcSubtype))
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcConn{
		stream:    stream,
		reviver:   reviver,
		closeSend: stream.CloseSend,
		cancel:    cancel,
		cc:        cc,
		done:      make(chan struct{}),
	}, nil
}

func newGRPCServerConn(stream grpc.ServerStream, reviver Reviver) *grpcConn {
	return &grpcConn{
		stream:  stream,
		reviver: reviver,
		done:    make(chan struct{}),
	}
}

func (g *grpcConn) ReadMessage(ctx context.Context) (*Inbound, error) {
	data, err := g.reads.read(ctx, func() ([]byte, error) {
		var data []byte
		err := g.stream.RecvMsg(&data)
		return data, err
	})
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled {
			return nil, &ClosedError{Code: int(st.Code()), Reason: st.Message()}
		}
		return nil, err
	}
	return ParseMessage(data, g.reviver)
}

func (g *grpcConn) WriteMessage(ctx context.Context, body []byte) error {
	if err := g.stream.SendMsg(body); err != nil {
		return fmt.Errorf("grpc write: %w", err)
	}
	return nil
}

func (g *grpcConn) WriteAndClose(ctx context.Context, body []byte) error {
	if err := g.WriteMessage(ctx, body); err != nil {
		return err
	}
	if g.closeSend != nil {
		return g.closeSend()
	}
	return nil
}

func (g *grpcConn) Stream() bool {
	return false
}

func (g *grpcConn) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		if g.cancel != nil {
			g.cancel()
		}
		if g.cc != nil {
			err = g.cc.Close()
		}
	})
	return err
}

func (g *grpcConn) String() string {
	return "grpc"
}

type grpcExchanger interface {
	exchange(stream grpc.ServerStream) error
}

type grpcService struct {
	server *Server
}

// exchange serves one stream for as long as the peer keeps it open or until
// the server closes the connection.
func (g *grpcService) exchange(stream grpc.ServerStream) error {
	conn := newGRPCServerConn(stream, g.server.opts.reviver)
	g.server.attach(conn)

	// Returning cancels the stream, which ends a pending RecvMsg.
	select {
	case <-conn.done:
	case <-stream.Context().Done():
	}
	return nil
}

// RegisterGRPC exposes s as the Exchange stream service on reg.
func (s *Server) RegisterGRPC(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*grpcExchanger)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName: exchangeDesc.StreamName,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(grpcExchanger).exchange(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		}},
		Metadata: "jsonrpc.proto",
	}, &grpcService{server: s})
}

// serveGRPC runs a gRPC server for s on ln until ctx is done.
func serveGRPC(ctx context.Context, s *Server, ln net.Listener) error {
	gs := grpc.NewServer()
	s.RegisterGRPC(gs)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		gs.Stop()
	}()
	err := gs.Serve(ln)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
