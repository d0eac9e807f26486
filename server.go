// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// maxHTTPBody caps a stateless HTTP request body.
const maxHTTPBody = 10 * 1024 * 1024 // 10MB

// Server accepts connections and answers every request on them with its
// Dispatcher. Each connection gets its own peer Client, so a handler can
// call back into the peer that called it.
type Server struct {
	dispatcher Dispatcher
	opts       *serverOptions
	log        zerolog.Logger

	mu        sync.Mutex
	peers     map[*Client]struct{}
	listeners map[net.Listener]struct{}
	closed    bool
}

func NewServer(d Dispatcher, opts ...ServerOption) *Server {
	o := newServerOptions(opts)
	return &Server{
		dispatcher: d,
		opts:       o,
		log:        o.log,
		peers:      make(map[*Client]struct{}),
		listeners:  make(map[net.Listener]struct{}),
	}
}

// attach serves conn with a new peer client. The returned channel is closed
// once the connection has ended and every reply on it was written.
func (s *Server) attach(conn Conn) (*Client, <-chan struct{}) {
	peer, done := s.newPeer()

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.peers[peer] = struct{}{}
	}
	s.mu.Unlock()

	if closed {
		_ = peer.Close()
	}
	s.start(peer, conn)
	return peer, done
}

func (s *Server) newPeer() (*Client, chan struct{}) {
	done := make(chan struct{})
	var once sync.Once
	peer := newClient(s.opts.peerOptions(s.dispatcher))
	peer.onDetach = func(p *Client) {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		once.Do(func() { close(done) })
	}
	return peer, done
}

// start attaches conn to peer. A peer already closed by Close refuses the
// connection, which is then closed here.
func (s *Server) start(peer *Client, conn Conn) {
	if err := peer.Attach(conn, true); err != nil {
		s.log.Debug().Err(err).Msg("attach peer")
		_ = conn.Close()
		peer.onDetach(peer)
	}
}

// ServeConn serves a single connection until it ends or ctx is done.
func (s *Server) ServeConn(ctx context.Context, conn Conn) error {
	peer, done := s.attach(conn)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = peer.Close()
		<-done
		return ctx.Err()
	}
}

// ServeStream accepts stream connections from ln until ctx is done or ln is
// closed. Every connection stays open for as many requests as the peer sends.
func (s *Server) ServeStream(ctx context.Context, ln net.Listener) error {
	if !s.track(ln) {
		_ = ln.Close()
		return nil
	}
	defer s.untrack(ln)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.log.Debug().Str("remote", nc.RemoteAddr().String()).Msg("accepted connection")
		go func() {
			_ = s.ServeConn(ctx, NewStreamConn(nc, s.opts.reviver))
		}()
	}
}

// ServeHTTP upgrades WebSocket requests to a persistent message socket and
// answers plain POST requests statelessly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		ws, err := websocket.Accept(w, r, s.opts.accept)
		if err != nil {
			s.log.Debug().Err(err).Msg("websocket accept")
			return
		}
		_ = s.ServeConn(r.Context(), NewWebSocketConn(ws, s.opts.reviver))
		return
	}
	s.serveStateless(w, r)
}

func (s *Server) serveStateless(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var reply any
	if _, err := ParseMessage(body, s.opts.reviver); err != nil {
		reply = NewResponse(s.opts.version, nil, nil, NewError(CodeParseError, "", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		s.writeHTTP(w, reply)
		return
	}

	reply = s.dispatcher.Dispatch(r.Context(), nil, body)
	if isNilReply(reply) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	s.writeHTTP(w, reply)
}

func (s *Server) writeHTTP(w http.ResponseWriter, reply any) {
	out, err := s.opts.codec.Encode(reply)
	if err != nil {
		s.log.Warn().Err(err).Msg("encode reply")
		return
	}
	if _, err := w.Write(out); err != nil {
		s.log.Debug().Err(err).Msg("write reply")
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrack(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

// Close stops every listener served by ServeStream and closes every peer
// connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	peers := make([]*Client, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	var errs []error
	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, p := range peers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
