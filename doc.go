// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jsonrpc implements JSON-RPC 1.0 and 2.0 over stream sockets (TCP),
// message sockets (WebSocket) and gRPC bidi streams, with one-shot and
// persistent connections and peer-to-peer calls on a single connection.
//
// # Transport Selection
//
// TCP is the default transport. Values are written back to back with no
// delimiter and framed by JSON structure on the way in. WebSocket and gRPC
// carry one message or batch per transport message:
//
//	jsonrpc.Dial(ctx, "localhost:9000")          // tcp, one connection per request
//	jsonrpc.Dial(ctx, "ws://localhost:9000/rpc") // websocket, persistent
//	jsonrpc.Dial(ctx, "grpc://localhost:9000")   // grpc, persistent
//
// # Usage
//
// Server usage:
//
//	router := jsonrpc.NewRouter(jsonrpc.Version2)
//	router.Handle("add", jsonrpc.Typed(func(ctx context.Context, peer *jsonrpc.Client, p []int) (int, error) {
//	    return p[0] + p[1], nil
//	}))
//
//	ln, err := jsonrpc.Listen(":9000", router)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ln.Close()
//	ln.Serve(ctx)
//
// Client usage:
//
//	client, err := jsonrpc.Dial(ctx, "localhost:9000", jsonrpc.WithReuseConnection(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var sum int
//	err = client.CallResult(ctx, "add", []int{2, 3}, &sum)
//
// # Peer-to-peer
//
// Every connection a Server accepts gets its own Client, passed to the
// Dispatcher as peer. A handler may call back over the connection that
// delivered the request; the reply to that nested call is correlated by its
// own id. A Client built with WithDispatcher answers calls from the server it
// dialed the same way.
//
// # Ownership
//
// A Client closes only transports it dialed, or that were attached with
// owned set. Borrowed transports stay open on every teardown path.
//
// # Architecture
//
//   - message.go, errors.go, idgen.go: message model and validators
//   - framer.go: structural framing of a JSON byte stream
//   - conn.go, stream.go, websocket.go, grpc.go: transports
//   - pending.go: pending request table and outbound queue
//   - client.go, dispatch.go: connection lifecycle and inbound routing
//   - server.go, router.go: server adapters and a method router
//   - http.go: stateless HTTP client
//   - transport.go, dial.go: transport registry, Dial and Listen
//   - observer.go, metrics.go: diagnostic events
package jsonrpc
