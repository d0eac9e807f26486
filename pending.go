// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
)

// Callback receives the outcome of a request exactly once. Notifications
// complete with a nil response once written.
type Callback func(resp *Response, err error)

// outboundItem is a request waiting for its connection to become writable.
type outboundItem struct {
	ctx  context.Context
	req  *Request
	key  string // correlation key, empty for notifications
	body []byte
	done Callback
	conn *connection // nil until assigned
}

// pendingEntry is a request written to conn and awaiting its reply.
type pendingEntry struct {
	req  *Request
	body []byte
	done Callback
	conn *connection
}

// pendingTable maps correlation keys to in-flight requests. Callers hold the
// owning client's lock.
type pendingTable struct {
	entries map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

func (t *pendingTable) add(key string, e *pendingEntry) error {
	if _, ok := t.entries[key]; ok {
		return ErrDuplicateID
	}
	t.entries[key] = e
	return nil
}

func (t *pendingTable) has(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// resolve removes and returns the entry for key, or nil when none is
// pending. The first resolution wins.
func (t *pendingTable) resolve(key string) *pendingEntry {
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	delete(t.entries, key)
	return e
}

// failAllFor removes every entry written on conn.
func (t *pendingTable) failAllFor(conn *connection) []*pendingEntry {
	var out []*pendingEntry
	for key, e := range t.entries {
		if e.conn == conn {
			out = append(out, e)
			delete(t.entries, key)
		}
	}
	return out
}

func (t *pendingTable) len() int {
	return len(t.entries)
}

// outboundQueue buffers requests in issue order. Callers hold the owning
// client's lock.
type outboundQueue struct {
	items []*outboundItem
}

func (q *outboundQueue) enqueue(item *outboundItem) {
	q.items = append(q.items, item)
}

// take pops the first item that may be written on conn: one assigned to it
// or one not yet assigned to any connection.
func (q *outboundQueue) take(conn *connection) *outboundItem {
	for i, item := range q.items {
		if item.conn != nil && item.conn != conn {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		item.conn = conn
		return item
	}
	return nil
}

// failAllFor removes every item assigned to conn.
func (q *outboundQueue) failAllFor(conn *connection) []*outboundItem {
	var out []*outboundItem
	kept := q.items[:0]
	for _, item := range q.items {
		if item.conn == conn {
			out = append(out, item)
			continue
		}
		kept = append(kept, item)
	}
	clear(q.items[len(kept):])
	q.items = kept
	return out
}

func (q *outboundQueue) has(key string) bool {
	for _, item := range q.items {
		if item.key == key {
			return true
		}
	}
	return false
}

func (q *outboundQueue) len() int {
	return len(q.items)
}
