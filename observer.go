// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"github.com/rs/zerolog"
)

// Observer receives diagnostic events. Events are informational only; the
// correlation contract never depends on them. Implementations must be safe
// for concurrent use.
type Observer interface {
	// TransportError is called when a connection fails.
	TransportError(err *Error)
	// TransportClosed is called when a connection ends in an orderly way.
	TransportClosed(err *Error)
	// Notification is called for an unsolicited peer notification when no
	// dispatcher is attached.
	Notification(msg *Inbound)
	// Request is called for an unsolicited peer request when no dispatcher
	// is attached. No reply is sent.
	Request(msg *Inbound)
}

// LogObserver writes events to a zerolog logger.
type LogObserver struct {
	Log zerolog.Logger
}

func (o LogObserver) TransportError(err *Error) {
	o.Log.Warn().Err(err).Msg("transport error")
}

func (o LogObserver) TransportClosed(err *Error) {
	o.Log.Debug().Str("reason", err.Message).Interface("data", err.Data).Msg("transport closed")
}

func (o LogObserver) Notification(msg *Inbound) {
	o.Log.Debug().RawJSON("message", msg.Raw).Msg("rx notification")
}

func (o LogObserver) Request(msg *Inbound) {
	o.Log.Debug().RawJSON("message", msg.Raw).Msg("rx request")
}

// MultiObserver fans every event out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) TransportError(err *Error) {
	for _, o := range m {
		o.TransportError(err)
	}
}

func (m MultiObserver) TransportClosed(err *Error) {
	for _, o := range m {
		o.TransportClosed(err)
	}
}

func (m MultiObserver) Notification(msg *Inbound) {
	for _, o := range m {
		o.Notification(msg)
	}
}

func (m MultiObserver) Request(msg *Inbound) {
	for _, o := range m {
		o.Request(msg)
	}
}
