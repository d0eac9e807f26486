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

	"github.com/rs/zerolog"
)

// Client issues JSON-RPC requests and correlates their replies by id. With a
// Dispatcher configured it also answers requests the peer sends over the same
// connections.
//
// A client either dials transports itself (one per request, or one shared
// connection with WithReuseConnection) or uses a transport attached with
// Attach. Only transports the client created, or was handed with owned set,
// are ever closed by it.
type Client struct {
	opts *dialOptions
	log  zerolog.Logger

	// ctx is passed to dispatched requests and dials; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *connection // current persistent connection, if any
	conns   map[*connection]struct{}
	pending *pendingTable
	queue   outboundQueue
	closed  bool

	onDetach func(*Client)
}

// NewClient creates a client. Without WithConn or WithDialer the client has
// no way to reach a peer until Attach is called.
func NewClient(opts ...DialOption) *Client {
	o := newDialOptions(opts)
	c := newClient(o)
	if o.conn != nil {
		_ = c.Attach(o.conn, o.owned)
	}
	return c
}

func newClient(o *dialOptions) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    o,
		log:     o.log,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*connection]struct{}),
		pending: newPendingTable(),
	}
}

// Version returns the protocol version the client speaks.
func (c *Client) Version() Version {
	return c.opts.version
}

// Go sends req and arranges for done to be called exactly once with the
// outcome. For a call the outcome is the peer's response (which may carry an
// application error) or a transport error. For a notification done is called
// once the message was handed to the transport.
//
// Go returns an error, and never calls done, when the request cannot be
// issued at all.
func (c *Client) Go(ctx context.Context, req *Request, done Callback) error {
	if done == nil {
		done = func(*Response, error) {}
	}
	var key string
	if !req.IsNotification() {
		k, ok := idKey(req.ID)
		if !ok || !isIDValue(req.ID) {
			return fmt.Errorf("jsonrpc: invalid request id %v", req.ID)
		}
		key = k
	}
	body, err := c.opts.codec.Encode(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	item := &outboundItem{
		ctx:  ctx,
		req:  req,
		key:  key,
		body: body,
		done: done,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if key != "" && (c.pending.has(key) || c.queue.has(key)) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, key)
	}
	conn, dial := c.target()
	if conn == nil {
		c.mu.Unlock()
		return ErrNoConnection
	}
	item.conn = conn
	c.queue.enqueue(item)
	ready := conn.Conn != nil
	c.mu.Unlock()

	switch {
	case dial:
		go c.open(conn)
	case ready:
		c.drain(conn)
	}
	return nil
}

// target picks the connection a new request is written on, creating a
// dialing placeholder when needed. Called with c.mu held.
func (c *Client) target() (*connection, bool) {
	if c.conn != nil {
		return c.conn, false
	}
	if c.opts.dial == nil {
		return nil, false
	}
	conn := newConnection(nil, true, c.opts.reuse)
	c.conns[conn] = struct{}{}
	if conn.reuse {
		c.conn = conn
	}
	return conn, true
}

type result struct {
	resp *Response
	err  error
}

// Request sends req and waits for its outcome. A notification returns a nil
// response once written. When ctx ends first the request stays pending and
// its late outcome is discarded.
func (c *Client) Request(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan result, 1)
	err := c.Go(ctx, req, func(resp *Response, err error) {
		ch <- result{resp, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call sends a request with a generated id and returns the peer's response.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	req, err := NewRequest(c.opts.version, method, params, c.opts.generator)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, req)
}

// CallResult is Call for callers that only want the result: an application
// error is returned as *Error and the result is decoded into out.
func (c *Client) CallResult(ctx context.Context, method string, params any, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodeResult(c.opts.codec, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Notify sends a notification and returns once it was written.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req, err := NewNotification(c.opts.version, method, params)
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, req)
	return err
}

// Attach makes tr the client's connection. Requests pending or queued on the
// previous connection fail with "Cancelling pending requests" before tr is
// installed, and the previous transport is closed only if the client owns
// it. The client reads from tr whether or not it owns it.
func (c *Client) Attach(tr Conn, owned bool) error {
	conn := newConnection(tr, owned, true)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	old := c.conn
	var (
		entries  []*pendingEntry
		items    []*outboundItem
		oldReady bool
	)
	if old != nil {
		old.detached.Store(true)
		old.closing.Store(true)
		oldReady = old.Conn != nil
		entries = c.pending.failAllFor(old)
		items = c.queue.failAllFor(old)
		delete(c.conns, old)
	}
	c.conn = conn
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	if old != nil {
		old.release()
		c.fail(entries, items, NewError(CodeInternalError, msgCancelPending, nil))
		if oldReady {
			if err := old.close(); err != nil {
				c.log.Debug().Err(err).Msg("close replaced transport")
			}
		}
	}

	go c.readLoop(conn)
	c.drain(conn)
	return nil
}

// Close closes every transport the client owns and releases borrowed ones.
// Requests still waiting on a borrowed transport fail; those on owned
// transports fail as the transport ends. Further requests return
// ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var (
		owned    []*connection
		released []*connection
		entries  []*pendingEntry
		items    []*outboundItem
	)
	for conn := range c.conns {
		switch {
		case conn.Conn == nil:
			// still dialing; cancelling c.ctx ends it
		case conn.owned:
			owned = append(owned, conn)
		default:
			conn.detached.Store(true)
			conn.closing.Store(true)
			released = append(released, conn)
			entries = append(entries, c.pending.failAllFor(conn)...)
			items = append(items, c.queue.failAllFor(conn)...)
			delete(c.conns, conn)
			if c.conn == conn {
				c.conn = nil
			}
		}
	}
	c.mu.Unlock()

	c.cancel()
	for _, conn := range released {
		conn.release()
	}
	c.fail(entries, items, NewError(CodeInternalError, msgCancelPending, nil))

	var errs []error
	for _, conn := range owned {
		if err := conn.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// open dials the transport for a placeholder connection and starts using it.
func (c *Client) open(conn *connection) {
	tr, err := c.opts.dial(c.ctx)
	if err != nil {
		c.teardown(conn, transportError(err), false)
		return
	}

	c.mu.Lock()
	if c.closed || conn.closing.Load() {
		c.mu.Unlock()
		_ = tr.Close()
		c.teardown(conn, NewError(CodeInternalError, msgSocketEnded, nil), true)
		return
	}
	conn.Conn = tr
	c.mu.Unlock()

	c.log.Debug().Bool("reuse", conn.reuse).Msg("transport connected")
	go c.readLoop(conn)
	c.drain(conn)
}

type writeResult struct {
	item *outboundItem
	err  error
}

// drain writes queued items for conn in FIFO order. A call is recorded as
// pending before its bytes are written; one whose id is already pending is
// refused instead. A one-shot connection takes a single item.
func (c *Client) drain(conn *connection) {
	var written, refused []writeResult

	conn.writeMu.Lock()
	for {
		c.mu.Lock()
		if conn.closing.Load() {
			c.mu.Unlock()
			break
		}
		item := c.queue.take(conn)
		if item != nil && item.key != "" {
			err := c.pending.add(item.key, &pendingEntry{
				req:  item.req,
				body: item.body,
				done: item.done,
				conn: conn,
			})
			if err != nil {
				c.mu.Unlock()
				refused = append(refused, writeResult{item, fmt.Errorf("%w: %s", err, item.key)})
				continue
			}
		}
		c.mu.Unlock()
		if item == nil {
			break
		}

		err := conn.write(context.WithoutCancel(item.ctx), item.body)
		if item.key == "" || err != nil {
			written = append(written, writeResult{item, err})
		}
		if conn.oneShot() {
			break
		}
	}
	conn.writeMu.Unlock()

	for _, r := range refused {
		r.item.done(nil, r.err)
	}
	for _, w := range written {
		if w.item.key == "" {
			w.item.done(nil, w.err)
			continue
		}
		c.mu.Lock()
		e := c.pending.resolve(w.item.key)
		c.mu.Unlock()
		if e != nil {
			e.done(nil, transportError(w.err))
		}
	}
}

// readLoop feeds every inbound message of conn to the dispatch path until the
// transport ends.
func (c *Client) readLoop(conn *connection) {
	for {
		in, err := conn.ReadMessage(conn.readCtx)
		if conn.detached.Load() {
			return
		}
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				rpcErr, closed := c.endError(conn, err)
				c.teardown(conn, rpcErr, closed)
				return
			}
			c.replyParseError(conn, perr.Err)
		} else {
			c.handleInbound(conn, in)
		}
		if conn.oneShot() {
			c.teardown(conn, NewError(CodeInternalError, msgSocketEnded, nil), true)
			return
		}
	}
}

// endError converts the error that ended a read loop into the error delivered
// to requests still waiting on the connection.
func (c *Client) endError(conn *connection, err error) (*Error, bool) {
	var ce *ClosedError
	switch {
	case errors.As(err, &ce):
		reason := ce.Reason
		if reason == "" {
			reason = msgSocketEnded
		}
		return NewError(CodeInternalError, reason, ce.Code), true
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), conn.closing.Load():
		return NewError(CodeInternalError, msgSocketEnded, nil), true
	default:
		return transportError(err), false
	}
}

// teardown fails all work scoped to conn, waits for requests the peer sent
// on it to be answered, then closes it if owned.
func (c *Client) teardown(conn *connection, rpcErr *Error, closed bool) {
	c.mu.Lock()
	conn.closing.Store(true)
	entries := c.pending.failAllFor(conn)
	items := c.queue.failAllFor(conn)
	if c.conn == conn {
		c.conn = nil
	}
	delete(c.conns, conn)
	c.mu.Unlock()

	if closed {
		c.opts.observer.TransportClosed(rpcErr)
	} else {
		c.opts.observer.TransportError(rpcErr)
	}
	c.fail(entries, items, rpcErr)

	conn.inflight.Wait()
	conn.cancelRead()
	if conn.Conn != nil {
		if err := conn.close(); err != nil {
			c.log.Debug().Err(err).Msg("close transport")
		}
	}
	if c.onDetach != nil {
		c.onDetach(c)
	}
}

func (c *Client) fail(entries []*pendingEntry, items []*outboundItem, rpcErr *Error) {
	for _, e := range entries {
		e.done(nil, rpcErr)
	}
	for _, item := range items {
		item.done(nil, rpcErr)
	}
}

// pendingLen reports the number of requests awaiting a reply.
func (c *Client) pendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}
