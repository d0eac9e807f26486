// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

type closeWriter interface {
	CloseWrite() error
}

// streamConn carries concatenated JSON values over a byte stream such as a
// TCP connection.
type streamConn struct {
	conn net.Conn

	// readMu is held for the duration of a read.
	readMu sync.Mutex
	framer *Framer
	held   *Inbound // completed after its reader stopped waiting
}

// NewStreamConn wraps a byte stream connection.
func NewStreamConn(conn net.Conn, reviver Reviver) Conn {
	return &streamConn{
		conn:   conn,
		framer: NewFramer(conn, reviver),
	}
}

// DialStream connects to a TCP endpoint
func DialStream(ctx context.Context, addr string, reviver Reviver) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial: %w", err)
	}
	return NewStreamConn(conn, reviver), nil
}

func (s *streamConn) ReadMessage(ctx context.Context) (*Inbound, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in := s.held; in != nil {
		s.held = nil
		return in, nil
	}

	in, err := s.framer.Next()
	if ctx.Err() == nil {
		return in, err
	}
	switch {
	case err == nil:
		s.held = in
	case isTimeout(err):
		s.framer.resume(s.conn)
	default:
		return nil, err
	}
	return nil, ctx.Err()
}

// interruptRead breaks a blocked read with an expired deadline and clears the
// deadline once the reader has returned.
func (s *streamConn) interruptRead() {
	_ = s.conn.SetReadDeadline(time.Now())
	s.readMu.Lock()
	_ = s.conn.SetReadDeadline(time.Time{})
	s.readMu.Unlock()
}

func (s *streamConn) WriteMessage(ctx context.Context, body []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	if _, err := s.conn.Write(body); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

func (s *streamConn) WriteAndClose(ctx context.Context, body []byte) error {
	if err := s.WriteMessage(ctx, body); err != nil {
		return err
	}
	if cw, ok := s.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (s *streamConn) Stream() bool {
	return true
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

func (s *streamConn) String() string {
	return "tcp " + s.conn.RemoteAddr().String()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
