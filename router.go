// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HandlerFunc runs one method. Params holds the raw params member, nil when
// absent. Returning an *Error sends it to the caller unchanged; any other
// error is reported as an internal error.
type HandlerFunc func(ctx context.Context, peer *Client, params json.RawMessage) (any, error)

// Router is a Dispatcher that maps method names to handlers.
type Router struct {
	version Version

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRouter(version Version) *Router {
	return &Router{
		version:  version.normalize(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for method, replacing any previous handler.
func (r *Router) Handle(method string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// HandleNotification registers fn for method. Calls to method get a null
// result.
func (r *Router) HandleNotification(method string, fn func(ctx context.Context, peer *Client, params json.RawMessage)) {
	r.Handle(method, func(ctx context.Context, peer *Client, params json.RawMessage) (any, error) {
		fn(ctx, peer, params)
		return nil, nil
	})
}

// Typed adapts fn to a HandlerFunc that decodes params into P. Params that do
// not decode are rejected with an invalid params error.
func Typed[P, R any](fn func(ctx context.Context, peer *Client, params P) (R, error)) HandlerFunc {
	return func(ctx context.Context, peer *Client, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, NewError(CodeInvalidParams, "", err.Error())
			}
		}
		return fn(ctx, peer, params)
	}
}

// Dispatch implements Dispatcher.
func (r *Router) Dispatch(ctx context.Context, peer *Client, msg json.RawMessage) any {
	in, err := ParseMessage(msg, nil)
	if err != nil {
		return NewResponse(r.version, nil, nil, NewError(CodeParseError, "", err.Error()))
	}
	return r.handle(ctx, peer, in.Value)
}

func (r *Router) handle(ctx context.Context, peer *Client, msg any) any {
	batch, ok := msg.([]any)
	if !ok || r.version != Version2 {
		return r.handleOne(ctx, peer, msg)
	}
	if len(batch) == 0 {
		return NewResponse(r.version, nil, nil, NewError(CodeInvalidRequest, "", nil))
	}

	replies := make([]any, len(batch))
	var g errgroup.Group
	for i, elem := range batch {
		g.Go(func() error {
			replies[i] = r.handleOne(ctx, peer, elem)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]any, 0, len(replies))
	for _, reply := range replies {
		if reply != nil {
			out = append(out, reply)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// handleOne answers a single request. It returns nil for notifications.
func (r *Router) handleOne(ctx context.Context, peer *Client, msg any) any {
	if !IsValidRequest(msg, r.version) {
		return NewResponse(r.version, nil, nil, NewError(CodeInvalidRequest, "", nil))
	}
	obj := msg.(map[string]any)
	req := requestFromObject(obj, r.version)

	r.mu.RLock()
	h := r.handlers[req.Method]
	r.mu.RUnlock()

	if h == nil {
		if req.IsNotification() {
			return nil
		}
		return NewResponse(r.version, req.ID, nil, NewError(CodeMethodNotFound, "", req.Method))
	}

	var params json.RawMessage
	if p, ok := obj["params"]; ok {
		raw, err := json.Marshal(p)
		if err != nil {
			return NewResponse(r.version, req.ID, nil, NewError(CodeInvalidParams, "", err.Error()))
		}
		params = raw
	}

	result, err := r.call(ctx, peer, h, params)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return NewResponse(r.version, req.ID, nil, asError(err))
	}
	return NewResponse(r.version, req.ID, result, nil)
}

func (*Router) call(ctx context.Context, peer *Client, h HandlerFunc, params json.RawMessage) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, peer, params)
}

func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(CodeInternalError, "", err.Error())
}
