// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// Reviver post-processes every decoded value, children before parents. The
// root value is passed with an empty key and array elements with their
// decimal index.
type Reviver func(key string, value any) any

// Inbound is one framed message: the exact bytes received and their decoded
// form. Numbers decode as json.Number.
type Inbound struct {
	Raw   json.RawMessage
	Value any
}

// Framer splits a byte stream into top-level JSON values. Values are not
// length prefixed and need no delimiter; framing follows the structure of
// the JSON text, so chunk boundaries are irrelevant.
//
// A Framer is not restartable. Malformed input is reported once as a
// *ParseError, after which Next returns io.EOF without reading further.
type Framer struct {
	dec     *json.Decoder
	reviver Reviver
	done    bool
}

func NewFramer(r io.Reader, reviver Reviver) *Framer {
	return &Framer{
		dec:     json.NewDecoder(r),
		reviver: reviver,
	}
}

// Next blocks until the next complete value is available.
func (f *Framer) Next() (*Inbound, error) {
	if f.done {
		return nil, io.EOF
	}
	var raw json.RawMessage
	if err := f.dec.Decode(&raw); err != nil {
		f.done = true
		if isSyntaxError(err) {
			return nil, &ParseError{Err: err}
		}
		return nil, err
	}
	in, err := ParseMessage(raw, f.reviver)
	if err != nil {
		f.done = true
		return nil, err
	}
	return in, nil
}

// resume continues framing from r after a read failed part way through a
// value. Bytes already buffered are kept.
func (f *Framer) resume(r io.Reader) {
	buffered, _ := io.ReadAll(f.dec.Buffered())
	f.dec = json.NewDecoder(io.MultiReader(bytes.NewReader(buffered), r))
	f.done = false
}

// ParseMessage decodes one complete message, as delivered by a message
// framed transport, and applies the reviver.
func ParseMessage(raw []byte, reviver Reviver) (*Inbound, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Err: errors.New("unexpected data after top-level value")}
	}
	if reviver != nil {
		v = revive("", v, reviver)
	}
	return &Inbound{Raw: json.RawMessage(raw), Value: v}, nil
}

func revive(key string, value any, fn Reviver) any {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			v[k] = revive(k, child, fn)
		}
	case []any:
		for i, child := range v {
			v[i] = revive(strconv.Itoa(i), child, fn)
		}
	}
	return fn(key, value)
}

func isSyntaxError(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.ErrUnexpectedEOF)
}
