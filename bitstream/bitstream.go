// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitstream implements LSB-first, byte-packed bit I/O as used by
// the Vorbis bitpacking convention: bits are read and written starting at
// the least significant bit of each byte, and multi-byte wire integers are
// little-endian.
package bitstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrBitWidth is returned when a caller asks to read or write more than 64
// bits in a single call.
var ErrBitWidth = errors.New("bitstream: width exceeds 64 bits")

// Reader reads LSB-first bit fields from an underlying byte stream.
type Reader struct {
	r    io.Reader
	cur  byte
	nbit uint // number of unconsumed bits remaining in cur
	pos  uint64
	log  *logrus.Entry
}

// NewReader returns a Reader that consumes bytes from r as needed.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// WithLogger attaches a logger used for Debug-level tracing; it never
// affects control flow. A nil logger disables tracing.
func (r *Reader) WithLogger(log *logrus.Entry) *Reader {
	r.log = log
	return r
}

// Pos returns the number of bits consumed so far.
func (r *Reader) Pos() uint64 { return r.pos }

// ReadBits reads n bits (0 <= n <= 64) LSB-first and returns them
// right-aligned in the result. Returns io.ErrUnexpectedEOF if the
// underlying stream runs out mid-read.
func (r *Reader) ReadBits(n uint) (uint64, error) {
	if n > 64 {
		return 0, ErrBitWidth
	}
	var result uint64
	var got uint
	for got < n {
		if r.nbit == 0 {
			b := make([]byte, 1)
			if _, err := io.ReadFull(r.r, b); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return 0, err
			}
			r.cur = b[0]
			r.nbit = 8
		}
		take := n - got
		if take > r.nbit {
			take = r.nbit
		}
		mask := byte((1 << take) - 1)
		result |= uint64(r.cur&mask) << got
		r.cur >>= take
		r.nbit -= take
		got += take
		r.pos += uint64(take)
	}
	if r.log != nil {
		r.log.Debugf("bitstream: read %d bits -> %#x (pos=%d)", n, result, r.pos)
	}
	return result, nil
}

// ReadUint32LE reads a 32-bit little-endian integer byte-aligned. It is a
// convenience wrapper for the common case of reading wire-level lengths
// and offsets outside of a bit-packed region.
func (r *Reader) ReadUint32LE() (uint32, error) {
	v, err := r.ReadBits(32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// ReadUint16LE reads a 16-bit little-endian integer byte-aligned.
func (r *Reader) ReadUint16LE() (uint16, error) {
	v, err := r.ReadBits(16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// Align discards any partially-consumed byte so the next read starts at a
// byte boundary.
func (r *Reader) Align() {
	r.nbit = 0
	r.cur = 0
}

// Writer writes LSB-first bit fields, buffering a partial byte until
// flushed or closed.
type Writer struct {
	w    io.Writer
	cur  byte
	nbit uint
	pos  uint64
	log  *logrus.Entry
}

// NewWriter returns a Writer that flushes whole bytes to w as they fill.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WithLogger attaches a logger used for Debug-level tracing.
func (w *Writer) WithLogger(log *logrus.Entry) *Writer {
	w.log = log
	return w
}

// Pos returns the number of bits written so far, including buffered bits.
func (w *Writer) Pos() uint64 { return w.pos }

// WriteBits writes the low n bits of v (0 <= n <= 64), LSB-first.
func (w *Writer) WriteBits(v uint64, n uint) error {
	if n > 64 {
		return ErrBitWidth
	}
	if n < 64 {
		v &= (1 << n) - 1
	}
	var put uint
	for put < n {
		free := 8 - w.nbit
		take := n - put
		if take > free {
			take = free
		}
		w.cur |= byte((v>>put)&((1<<take)-1)) << w.nbit
		w.nbit += take
		put += take
		if w.nbit == 8 {
			if _, err := w.w.Write([]byte{w.cur}); err != nil {
				return fmt.Errorf("bitstream: write byte: %w", err)
			}
			w.cur = 0
			w.nbit = 0
		}
	}
	w.pos += uint64(n)
	if w.log != nil {
		w.log.Debugf("bitstream: wrote %d bits <- %#x (pos=%d)", n, v, w.pos)
	}
	return nil
}

// WriteUint32LE writes a 32-bit little-endian integer.
func (w *Writer) WriteUint32LE(v uint32) error {
	return w.WriteBits(uint64(v), 32)
}

// WriteUint16LE writes a 16-bit little-endian integer.
func (w *Writer) WriteUint16LE(v uint16) error {
	return w.WriteBits(uint64(v), 16)
}

// Close flushes any partially-written byte, padding the remaining high
// bits with zero.
func (w *Writer) Close() error {
	if w.nbit == 0 {
		return nil
	}
	if _, err := w.w.Write([]byte{w.cur}); err != nil {
		return fmt.Errorf("bitstream: flush final byte: %w", err)
	}
	w.cur = 0
	w.nbit = 0
	return nil
}

// Ilog returns the position of the highest set bit of v, counting from 1
// (Ilog(0) == 0). This matches the Vorbis/Tremor "ilog" helper used to size
// mode-index fields and the vals_per_book search.
func Ilog(v uint32) uint {
	var ret uint
	for v != 0 {
		ret++
		v >>= 1
	}
	return ret
}
