// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/luxfi/jsonrpc"

// Event names recorded by MetricsObserver.
const (
	EventTransportError  = "transport_error"
	EventTransportClosed = "transport_closed"
	EventNotification    = "rx_notification"
	EventRequest         = "rx_request"
)

// MetricsObserver counts diagnostic events with an OpenTelemetry counter
// named jsonrpc.events, split by the jsonrpc.event attribute.
type MetricsObserver struct {
	events metric.Int64Counter
}

// NewMetricsObserver creates the counter on meter. A nil meter resolves to
// the global meter provider.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	events, err := meter.Int64Counter("jsonrpc.events",
		metric.WithUnit("{event}"),
		metric.WithDescription("Number of JSON-RPC transport diagnostic events"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	return &MetricsObserver{events: events}, nil
}

func (m *MetricsObserver) record(event string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("jsonrpc.event", event))
	m.events.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *MetricsObserver) TransportError(err *Error) {
	m.record(EventTransportError, attribute.Int("jsonrpc.error_code", err.Code))
}

func (m *MetricsObserver) TransportClosed(err *Error) {
	m.record(EventTransportClosed)
}

func (m *MetricsObserver) Notification(msg *Inbound) {
	m.record(EventNotification, methodAttr(msg))
}

func (m *MetricsObserver) Request(msg *Inbound) {
	m.record(EventRequest, methodAttr(msg))
}

func methodAttr(msg *Inbound) attribute.KeyValue {
	if obj, ok := msg.Value.(map[string]any); ok {
		if method, ok := obj["method"].(string); ok {
			return attribute.String("rpc.method", method)
		}
	}
	return attribute.String("rpc.method", "")
}
