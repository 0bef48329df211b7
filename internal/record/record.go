// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package record stores polled telemetry as a CBOR sequence: one Header
// followed by any number of Entry items.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// FormatVersion is written to every header
const FormatVersion = 1

// ErrBadHeader is returned when a recording does not start with a header
var ErrBadHeader = errors.New("not a vescstat recording")

// Header opens a recording
type Header struct {
	Magic   string    `cbor:"1,keyasint"`
	Version int       `cbor:"2,keyasint"`
	Session string    `cbor:"3,keyasint"`
	Started time.Time `cbor:"4,keyasint"`
	Target  string    `cbor:"5,keyasint"`
}

const magic = "vescstat"

// Entry is one poll result
type Entry struct {
	Time     time.Time     `cbor:"1,keyasint"`
	Request  string        `cbor:"2,keyasint"`
	Fields   vesc.Fields   `cbor:"3,keyasint"`
	Snapshot vesc.Snapshot `cbor:"4,keyasint"`
	Error    string        `cbor:"5,keyasint,omitempty"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder appends entries to a recording
type Recorder struct {
	enc    *cbor.Encoder
	closer io.Closer
	header Header
}

// Create creates (or truncates) the file at path and writes the header
func Create(path, target string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	r, err := NewRecorder(f, target, time.Now())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewRecorder writes a header with a fresh session id to w
func NewRecorder(w io.Writer, target string, started time.Time) (*Recorder, error) {
	r := &Recorder{
		enc: encMode.NewEncoder(w),
		header: Header{
			Magic:   magic,
			Version: FormatVersion,
			Session: uuid.New().String(),
			Started: started,
			Target:  target,
		},
	}
	if err := r.enc.Encode(r.header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return r, nil
}

// Header returns the header written at the start of the recording
func (r *Recorder) Header() Header {
	return r.header
}

// Write appends one entry
func (r *Recorder) Write(e Entry) error {
	if err := r.enc.Encode(e); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Close closes the underlying file, if Create opened one
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Player reads a recording back
type Player struct {
	dec    *cbor.Decoder
	closer io.Closer
	Header Header
}

// Open opens a recording file and reads its header
func Open(path string) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	p, err := NewPlayer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

// NewPlayer reads the header from r
func NewPlayer(r io.Reader) (*Player, error) {
	p := &Player{dec: cbor.NewDecoder(r)}
	if err := p.dec.Decode(&p.Header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if p.Header.Magic != magic {
		return nil, ErrBadHeader
	}
	if p.Header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported recording version %d", p.Header.Version)
	}
	return p, nil
}

// Next returns the next entry, or io.EOF at the end of the recording
func (p *Player) Next() (Entry, error) {
	var e Entry
	if err := p.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("read entry: %w", err)
	}
	return e, nil
}

// Close closes the underlying file, if Open opened one
func (p *Player) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
