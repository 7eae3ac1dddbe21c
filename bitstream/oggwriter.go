package bitstream

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/oggframer"
)

// OggWriter is the Ogg-aware bit writer described by the bit-stream
// component: it exposes the same WriteBits call as Writer, but bits
// accumulate into the current packet rather than going straight to an
// io.Writer. FlushPacket freezes the current packet into the underlying
// Framer; FlushPage asks the Framer to lay out and emit accumulated
// packets as one or more Ogg pages.
type OggWriter struct {
	framer *oggframer.Framer
	packet bytes.Buffer
	inner  *Writer
	log    *logrus.Entry
}

// NewOggWriter returns an OggWriter that delivers packets to framer.
func NewOggWriter(framer *oggframer.Framer) *OggWriter {
	w := &OggWriter{framer: framer}
	w.inner = NewWriter(&w.packet)
	return w
}

// WithLogger attaches a logger for Debug-level tracing.
func (w *OggWriter) WithLogger(log *logrus.Entry) *OggWriter {
	w.log = log
	w.inner.WithLogger(log)
	return w
}

// WriteBits appends n bits (LSB-first) to the packet currently being
// built.
func (w *OggWriter) WriteBits(v uint64, n uint) error {
	return w.inner.WriteBits(v, n)
}

// Inner exposes the byte-packed Writer backing the packet currently being
// built, for callers (such as codebook.Rebuild) that write through a
// plain *Writer rather than an OggWriter.
func (w *OggWriter) Inner() *Writer {
	return w.inner
}

// FlushPacket closes out the in-progress packet, zero-padding its final
// byte, and hands it to the underlying Framer. It resets the packet
// buffer for the next packet.
func (w *OggWriter) FlushPacket() error {
	if err := w.inner.Close(); err != nil {
		return fmt.Errorf("bitstream: flush packet: %w", err)
	}
	data := make([]byte, w.packet.Len())
	copy(data, w.packet.Bytes())
	w.framer.AddPacket(data)
	w.packet.Reset()
	w.inner = NewWriter(&w.packet)
	if w.log != nil {
		w.log.WithField("packet_bytes", len(data)).Debug("bitstream: flushed packet")
	}
	return nil
}

// FlushPage asks the underlying Framer to lay out and emit all packets
// accumulated since the previous FlushPage call as one or more Ogg pages.
// granule is the granule position recorded on the page that completes
// this batch; last marks the final page of the logical bitstream.
func (w *OggWriter) FlushPage(granule int64, last bool) error {
	return w.framer.FlushPage(granule, last)
}
