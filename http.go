// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/rs/zerolog"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// HTTPClient makes stateless version 2 calls over HTTP POST: one request per
// HTTP exchange, no connection state and no correlation table.
type HTTPClient struct {
	uri        *url.URL
	client     *http.Client
	headers    http.Header
	log        zerolog.Logger
	maxRetries int
	retryWait  time.Duration
}

// HTTPOption configures an HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = hc }
}

// WithHeader adds a header to every request
func WithHeader(key, value string) HTTPOption {
	return func(c *HTTPClient) { c.headers.Add(key, value) }
}

// WithQueryParam adds a query parameter to the endpoint URL
func WithQueryParam(key, value string) HTTPOption {
	return func(c *HTTPClient) {
		q := c.uri.Query()
		q.Add(key, value)
		c.uri.RawQuery = q.Encode()
	}
}

// WithHTTPLogger sets the logger
func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.log = l }
}

// WithRetry sets how often a transient failure is retried and the first
// backoff, which doubles on every attempt.
func WithRetry(attempts int, wait time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.maxRetries = max(attempts, 1)
		c.retryWait = wait
	}
}

// NewHTTPClient creates a client for the endpoint at rawURL
func NewHTTPClient(rawURL string, opts ...HTTPOption) (*HTTPClient, error) {
	uri, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	c := &HTTPClient{
		uri:        uri,
		client:     newHTTPClient(),
		headers:    make(http.Header),
		log:        zerolog.Nop(),
		maxRetries: maxRetries,
		retryWait:  retryBaseWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClient creates an HTTP client with connection reuse disabled, which
// avoids stale pooled connections surfacing as EOF on the next call.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe")
}

// Call invokes method and decodes the result into reply. An application
// error is returned as *Error. A null result leaves reply untouched.
func (c *HTTPClient) Call(ctx context.Context, method string, params, reply any) error {
	// json2 always writes the params member, and null params are invalid.
	if params == nil {
		params = []any{}
	}
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}
	return c.send(ctx, method, body, func(resp *http.Response) error {
		err := json2.DecodeClientResponse(resp.Body, reply)
		var jsonErr *json2.Error
		switch {
		case err == nil, errors.Is(err, json2.ErrNullResult):
			return nil
		case errors.As(err, &jsonErr):
			return &Error{Code: int(jsonErr.Code), Message: jsonErr.Message, Data: jsonErr.Data}
		default:
			return fmt.Errorf("failed to decode client response: %w", err)
		}
	})
}

// Notify sends a notification. The server replies with no content.
func (c *HTTPClient) Notify(ctx context.Context, method string, params any) error {
	req, err := NewNotification(Version2, method, params)
	if err != nil {
		return err
	}
	body, err := defaultCodec.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return c.send(ctx, method, body, func(*http.Response) error { return nil })
}

func (c *HTTPClient) send(ctx context.Context, method string, body []byte, decode func(*http.Response) error) error {
	log := c.log.With().Str("method", method).Str("uri", c.uri.String()).Logger()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		// The body buffer is consumed by every attempt.
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri.String(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		request.Header = c.headers.Clone()
		request.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(request)
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt+1).Bool("retryable", isRetryableError(err)).Msg("request attempt failed")
			if isRetryableError(err) {
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Msg("request succeeded")
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = CleanlyCloseBody(resp.Body)
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		err = decode(resp)
		_ = CleanlyCloseBody(resp.Body)
		return err
	}

	return fmt.Errorf("failed to issue request after %d retries: %w", c.maxRetries, lastErr)
}
