// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"encoding/json"
	"reflect"
)

// Dispatcher answers requests received from a peer. It is called with the
// raw message (a request, notification or batch that passed validation) and
// the client connected to that peer, which may be used to call back over the
// same connection. Peer is nil when there is no connection to call back on.
//
// The returned value is encoded as the reply. A nil return sends nothing.
// Dispatch is called concurrently for distinct inbound messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, peer *Client, msg json.RawMessage) any
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, peer *Client, msg json.RawMessage) any

func (f DispatcherFunc) Dispatch(ctx context.Context, peer *Client, msg json.RawMessage) any {
	return f(ctx, peer, msg)
}

// handleInbound routes one inbound message: a reply resolves its pending
// request, a peer request goes to the dispatcher, anything else is dropped.
func (c *Client) handleInbound(conn *connection, in *Inbound) {
	if IsResponse(in.Value) {
		c.resolveReply(in.Value.(map[string]any))
		return
	}
	if batch, ok := in.Value.([]any); ok && isReplyBatch(batch) {
		for _, elem := range batch {
			c.resolveReply(elem.(map[string]any))
		}
		return
	}

	if !c.isPeerRequest(in.Value) {
		return
	}
	if c.opts.dispatcher == nil {
		if IsNotification(in.Value) {
			c.opts.observer.Notification(in)
		} else {
			c.opts.observer.Request(in)
		}
		return
	}
	c.dispatch(conn, in)
}

// resolveReply completes the pending request obj answers, if any.
func (c *Client) resolveReply(obj map[string]any) {
	key, ok := idKey(obj["id"])
	if !ok {
		return
	}
	c.mu.Lock()
	e := c.pending.resolve(key)
	c.mu.Unlock()
	if e == nil {
		return
	}
	resp, err := ParseResponse(obj)
	if err != nil {
		e.done(nil, err)
		return
	}
	e.done(resp, nil)
}

// isReplyBatch reports whether batch is a non-empty array of replies. Such an
// array never reaches the dispatcher, so two peers cannot answer each other's
// error replies forever.
func isReplyBatch(batch []any) bool {
	if len(batch) == 0 {
		return false
	}
	for _, elem := range batch {
		if !IsResponse(elem) {
			return false
		}
	}
	return true
}

// isPeerRequest reports whether msg is a request or batch the dispatcher
// should see. Under version 2 every array is a batch, however malformed its
// elements: the dispatcher answers the bad ones with errors.
func (c *Client) isPeerRequest(msg any) bool {
	if _, ok := msg.([]any); ok {
		return c.opts.version == Version2
	}
	return IsValidRequest(msg, c.opts.version)
}

// dispatch runs the dispatcher for in and writes its reply on conn.
func (c *Client) dispatch(conn *connection, in *Inbound) {
	conn.inflight.Add(1)
	go func() {
		defer conn.inflight.Done()

		reply := c.opts.dispatcher.Dispatch(c.ctx, c, in.Raw)
		if isNilReply(reply) {
			return
		}
		body, err := c.opts.codec.Encode(reply)
		if err != nil {
			c.log.Warn().Err(err).Msg("encode reply")
			c.replyParseError(conn, err)
			return
		}
		c.writeReply(conn, body)
	}()
}

// replyParseError answers malformed input with a parse error carrying a null
// id. If even that cannot be encoded an empty body is written.
func (c *Client) replyParseError(conn *connection, cause error) {
	resp := NewResponse(c.opts.version, nil, nil, NewError(CodeParseError, "", cause.Error()))
	body, err := c.opts.codec.Encode(resp)
	if err != nil {
		body = nil
	}
	c.writeReply(conn, body)
}

func (c *Client) writeReply(conn *connection, body []byte) {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.WriteMessage(context.WithoutCancel(c.ctx), body); err != nil {
		c.log.Debug().Err(err).Msg("write reply")
	}
}

func isNilReply(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
