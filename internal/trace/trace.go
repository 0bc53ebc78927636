// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package trace captures every send/receive exchange as a CBOR sequence
// so a session can be inspected and re-validated offline.
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Exchange is one attempt as written to a trace
type Exchange struct {
	At        time.Time     `cbor:"1,keyasint"`
	Family    string        `cbor:"2,keyasint"`
	Address   uint8         `cbor:"3,keyasint"`
	Command   string        `cbor:"4,keyasint"`
	CommandID uint16        `cbor:"5,keyasint"`
	Attempt   int           `cbor:"6,keyasint"`
	Sent      []byte        `cbor:"7,keyasint"`
	Received  []byte        `cbor:"8,keyasint,omitempty"`
	Kind      string        `cbor:"9,keyasint,omitempty"`
	Error     string        `cbor:"10,keyasint,omitempty"`
	Elapsed   time.Duration `cbor:"11,keyasint"`
	Code      uint8         `cbor:"12,keyasint"`
	Token     string        `cbor:"13,keyasint,omitempty"`
}

// Cmd rebuilds the command as far as decoding needs it. The request
// payload is not recorded; it is part of Sent.
func (ex Exchange) Cmd() bench.Command {
	return bench.Command{
		ID:      ex.CommandID,
		Name:    ex.Command,
		Address: ex.Address,
		Code:    ex.Code,
		Token:   ex.Token,
	}
}

// Replay runs the receive path of proto over a recorded exchange: every
// validation gate, then payload decoding
func Replay(ex Exchange, proto bench.Protocol) (bench.Record, error) {
	if len(ex.Received) == 0 {
		return nil, bench.Errorf(bench.KindTimeout, "no reply recorded")
	}
	f, err := proto.Decode(ex.Sent, ex.Received)
	if err != nil {
		return nil, err
	}
	return proto.DecodePayload(ex.Cmd(), f)
}

// FromAttempt converts a runner attempt
func FromAttempt(a bench.Attempt) Exchange {
	ex := Exchange{
		At:        a.At,
		Family:    a.Family,
		Address:   a.Command.Address,
		Command:   a.Command.String(),
		CommandID: a.Command.ID,
		Attempt:   a.Attempt,
		Sent:      a.Sent,
		Received:  a.Received,
		Elapsed:   a.Elapsed,
		Code:      a.Command.Code,
		Token:     a.Command.Token,
	}
	if a.Err != nil {
		ex.Kind = bench.KindOf(a.Err).String()
		ex.Error = a.Err.Error()
	}
	return ex
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder is a bench.Observer that appends every attempt to w
type Recorder struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	count   int
	lastErr error
}

// NewRecorder writes a CBOR sequence to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// ObserveAttempt implements bench.Observer
func (r *Recorder) ObserveAttempt(a bench.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(FromAttempt(a)); err != nil {
		r.lastErr = err
		return
	}
	r.count++
}

// ObserveTransaction implements bench.Observer
func (r *Recorder) ObserveTransaction(bench.Summary) {}

// Count returns how many exchanges were written
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the last write error, if any
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Reader iterates the exchanges of a trace
type Reader struct {
	dec *cbor.Decoder
	n   int
}

// NewReader reads a CBOR sequence from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next exchange, or io.EOF at the end of the trace
func (r *Reader) Next() (Exchange, error) {
	var ex Exchange
	if err := r.dec.Decode(&ex); err != nil {
		if errors.Is(err, io.EOF) {
			return Exchange{}, io.EOF
		}
		return Exchange{}, fmt.Errorf("trace record %d: %w", r.n+1, err)
	}
	r.n++
	return ex, nil
}

// ReadAll returns every exchange of a trace
func ReadAll(r io.Reader) ([]Exchange, error) {
	tr := NewReader(r)
	var out []Exchange
	for {
		ex, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ex)
	}
}

var _ bench.Observer = (*Recorder)(nil)
