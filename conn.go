// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"sync"
	"sync/atomic"
)

// maxMessageSize caps a single message on message framed transports.
const maxMessageSize = 64 * 1024 * 1024 // 64MB

// Conn is one transport endpoint carrying JSON-RPC messages. Stream
// transports frame a byte stream structurally; message transports carry one
// message (or batch) per transport level message.
//
// ReadMessage is called from a single goroutine. Writes are serialized by
// the caller.
type Conn interface {
	// ReadMessage blocks until the next inbound message. Malformed input is
	// reported as a *ParseError, an orderly end as io.EOF or *ClosedError.
	// It returns ctx.Err() soon after ctx is done, without closing the
	// transport and without losing a message that was being received.
	ReadMessage(ctx context.Context) (*Inbound, error)

	// WriteMessage sends one encoded message.
	WriteMessage(ctx context.Context, body []byte) error

	// WriteAndClose sends body and signals the end of output so the peer
	// can reply without waiting for further writes. Transports that cannot
	// half-close write normally.
	WriteAndClose(ctx context.Context, body []byte) error

	// Stream reports whether the transport is a byte stream. A parse error
	// on a stream is terminal; on a message transport it only affects one
	// message.
	Stream() bool

	Close() error
}

// connection tracks one transport on behalf of a client: who owns it, how it
// is reused, and the work in flight on it.
type connection struct {
	Conn // nil while dialing

	owned bool
	reuse bool

	// readCtx ends when the client stops reading from the transport.
	readCtx    context.Context
	cancelRead context.CancelFunc

	// writeMu is held across popping queued items and writing them so the
	// transport sees requests in issue order.
	writeMu  sync.Mutex
	inflight sync.WaitGroup

	closing  atomic.Bool
	detached atomic.Bool
	closed   sync.Once
}

func newConnection(c Conn, owned, reuse bool) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		Conn:       c,
		owned:      owned,
		reuse:      reuse,
		readCtx:    ctx,
		cancelRead: cancel,
	}
}

// oneShot reports whether the connection carries exactly one request.
func (c *connection) oneShot() bool {
	return !c.reuse
}

// write picks the write mode from the reuse policy.
func (c *connection) write(ctx context.Context, body []byte) error {
	if c.reuse {
		return c.WriteMessage(ctx, body)
	}
	return c.WriteAndClose(ctx, body)
}

// close closes the transport only if this side created it. Borrowed
// transports belong to whoever lent them.
func (c *connection) close() error {
	c.closing.Store(true)
	if !c.owned || c.Conn == nil {
		return nil
	}
	var err error
	c.closed.Do(func() { err = c.Conn.Close() })
	return err
}

// release stops the client from using a transport it does not own. The read
// loop is interrupted before release returns, so the next message on the
// transport goes to whoever reads it next.
func (c *connection) release() {
	c.detached.Store(true)
	c.closing.Store(true)
	c.cancelRead()
	if ir, ok := c.Conn.(readInterrupter); ok {
		ir.interruptRead()
	}
}

// readInterrupter is implemented by transports whose blocked read must be
// broken explicitly. interruptRead returns once the reader has let go.
type readInterrupter interface {
	interruptRead()
}

type readResult struct {
	data []byte
	err  error
}

// backgroundRead runs one blocking transport read at a time on its own
// goroutine. A caller that stops waiting leaves the result for the next
// caller instead of dropping it.
type backgroundRead struct {
	mu      sync.Mutex
	running bool
	results chan readResult
}

func (b *backgroundRead) read(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.results == nil {
		b.results = make(chan readResult, 1)
	}
	if !b.running {
		b.running = true
		go func() {
			data, err := fn()
			b.results <- readResult{data, err}
		}()
	}
	results := b.results
	b.mu.Unlock()

	select {
	case r := <-results:
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
