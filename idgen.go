// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// IDGenerator produces request ids. Ids must be unique among the requests
// pending on one client.
type IDGenerator func() any

// UUIDGenerator returns random version 4 UUID strings.
func UUIDGenerator() any {
	return uuid.NewString()
}

// XIDGenerator returns globally unique, sortable 20 character ids.
func XIDGenerator() any {
	return xid.New().String()
}

// SequenceGenerator returns a generator of increasing integers starting at
// start. It is safe for concurrent use and keeps test runs reproducible.
func SequenceGenerator(start int64) IDGenerator {
	var next atomic.Int64
	next.Store(start - 1)
	return func() any {
		return next.Add(1)
	}
}
