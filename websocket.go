// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// wsConn carries one JSON-RPC message (or batch) per WebSocket text message.
type wsConn struct {
	conn    *websocket.Conn
	reviver Reviver
	reads   backgroundRead
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn, reviver Reviver) Conn {
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn, reviver: reviver}
}

// DialWebSocket connects to a ws:// or wss:// endpoint.
func DialWebSocket(ctx context.Context, url string, reviver Reviver, opts *websocket.DialOptions) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, opts)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return NewWebSocketConn(conn, reviver), nil
}

func (w *wsConn) ReadMessage(ctx context.Context) (*Inbound, error) {
	// Cancelling a websocket read closes the socket, so the read itself
	// never sees ctx.
	data, err := w.reads.read(ctx, func() ([]byte, error) {
		_, data, err := w.conn.Read(context.Background())
		return data, err
	})
	if err != nil {
		if code := websocket.CloseStatus(err); code != -1 {
			var ce websocket.CloseError
			reason := ""
			if errors.As(err, &ce) {
				reason = ce.Reason
			}
			return nil, &ClosedError{Code: int(code), Reason: reason}
		}
		return nil, err
	}
	return ParseMessage(data, w.reviver)
}

func (w *wsConn) WriteMessage(ctx context.Context, body []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageText, body); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// WriteAndClose writes normally: a message socket has no half-close.
func (w *wsConn) WriteAndClose(ctx context.Context, body []byte) error {
	return w.WriteMessage(ctx, body)
}

func (w *wsConn) Stream() bool {
	return false
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}

func (w *wsConn) String() string {
	return "ws"
}
