// Package oggframer groups Vorbis packets into CRC32-checked Ogg pages,
// assigning page sequence numbers and granule positions. It implements
// only the write direction of Ogg framing; decoding is out of scope.
package oggframer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"
)

const (
	capturePattern = "OggS"

	headerFirst        byte = 0x02
	headerLast         byte = 0x04
	headerContinuation byte = 0x01

	maxSegments   = 255
	maxSegmentLen = 255
	headerSize    = 27 // capture(4) + version(1) + flags(1) + granule(8) + serial(4) + seq(4) + crc(4) + segcount(1)
)

var crcTable = buildCRCTable(0x04c11db7)

// buildCRCTable generates the non-reflected CRC32 table used by Ogg
// framing. Go's hash/crc32.MakeTable expects a reflected polynomial and
// cannot be reused here: feeding it the Ogg polynomial directly computes
// the wrong checksum, so the table is built by hand exactly as libogg (and
// zeozeozeo-tag/ogg.go's oggCRCTable) do it.
func buildCRCTable(poly uint32) *[256]uint32 {
	var t [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

func crcUpdate(crc uint32, p []byte) uint32 {
	for _, v := range p {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^v]
	}
	return crc
}

// ErrNoPackets is returned by FlushPage when there is nothing buffered to
// emit and the caller did not request an explicit empty final page.
var ErrNoPackets = errors.New("oggframer: no packets to flush")

// Framer accumulates packets and emits Ogg pages to an underlying writer.
// A Framer is owned by exactly one in-progress conversion and is not safe
// for concurrent use.
type Framer struct {
	w       io.Writer
	serial  uint32
	seq     uint32
	pending [][]byte // complete packets not yet laid out into a page
	log     *logrus.Entry
}

// New returns a Framer writing pages to w with a random serial number.
func New(w io.Writer) *Framer {
	return &Framer{
		w:      w,
		serial: rand.Uint32(),
	}
}

// WithLogger attaches a logger for Debug-level page tracing.
func (f *Framer) WithLogger(log *logrus.Entry) *Framer {
	f.log = log
	return f
}

// SerialOverride pins the bitstream serial number, overriding the random
// default. Used by tests that need byte-identical output across runs.
func (f *Framer) SerialOverride(serial uint32) {
	f.serial = serial
}

// Serial returns the bitstream serial number in use.
func (f *Framer) Serial() uint32 { return f.serial }

// Sequence returns the next page sequence number that will be assigned.
func (f *Framer) Sequence() uint32 { return f.seq }

// AddPacket appends a complete packet to the pending set for the next
// FlushPage call.
func (f *Framer) AddPacket(packet []byte) {
	buf := make([]byte, len(packet))
	copy(buf, packet)
	f.pending = append(f.pending, buf)
}

// pageLayout is one Ogg page's worth of laced segment table and body,
// before granule/sequence/serial/CRC are assigned.
type pageLayout struct {
	seg  []byte
	body []byte
}

// layoutPages lays out packets into 255-segment pages, splitting a packet
// across pages (continuation) only when its lacing would overflow a
// page's 255-entry segment table.
func layoutPages(packets [][]byte) []pageLayout {
	var pages []pageLayout
	var seg, body []byte
	closePage := func() {
		if len(seg) > 0 {
			pages = append(pages, pageLayout{seg: seg, body: body})
		}
		seg, body = nil, nil
	}
	for _, pkt := range packets {
		n := len(pkt)
		off := 0
		for n >= maxSegmentLen {
			if len(seg) >= maxSegments {
				closePage()
			}
			seg = append(seg, maxSegmentLen)
			body = append(body, pkt[off:off+maxSegmentLen]...)
			off += maxSegmentLen
			n -= maxSegmentLen
		}
		if len(seg) >= maxSegments {
			closePage()
		}
		seg = append(seg, byte(n))
		body = append(body, pkt[off:off+n]...)
	}
	closePage()
	return pages
}

// FlushPage lays out all pending packets into one or more Ogg pages and
// writes them to the underlying writer. granule is the granule position
// recorded on the final page produced by this call; every earlier page (a
// page only arises when lacing overflows a single 255-entry segment
// table) carries granule -1, matching "page that does not complete a
// packet boundary carries no new granule information." If last is true,
// the final page of this call carries the end-of-stream flag.
//
// Calling FlushPage with no pending packets and last == true emits a
// single empty terminating page (used to close a stream with a zero-length
// final packet); with no pending packets and last == false it is a no-op
// returning ErrNoPackets.
func (f *Framer) FlushPage(granule int64, last bool) error {
	packets := f.pending
	f.pending = nil

	if len(packets) == 0 {
		if !last {
			return ErrNoPackets
		}
		return f.writePage2(nil, nil, false, -1, true)
	}

	pages := layoutPages(packets)
	for i, p := range pages {
		continuation := i > 0 && len(pages[i-1].seg) > 0 && pages[i-1].seg[len(pages[i-1].seg)-1] == maxSegmentLen
		isLastOfBatch := i == len(pages)-1
		pageGranule := int64(-1)
		pageLast := false
		if isLastOfBatch {
			pageGranule = granule
			pageLast = last
		}
		if err := f.writePage2(p.seg, p.body, continuation, pageGranule, pageLast); err != nil {
			return err
		}
	}
	return nil
}

// writePage2 assigns sequence/flags/serial/CRC and writes one page.
func (f *Framer) writePage2(seg, body []byte, continuation bool, granule int64, last bool) error {
	var flags byte
	if f.seq == 0 {
		flags |= headerFirst
	}
	if continuation {
		flags |= headerContinuation
	}
	if last {
		flags |= headerLast
	}

	header := make([]byte, headerSize)
	copy(header[0:4], capturePattern)
	header[4] = 0 // version
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:14], uint64(granule))
	binary.LittleEndian.PutUint32(header[14:18], f.serial)
	binary.LittleEndian.PutUint32(header[18:22], f.seq)
	// header[22:26] CRC left zero for the checksum pass
	header[26] = byte(len(seg))

	crc := crcUpdate(0, header)
	crc = crcUpdate(crc, seg)
	crc = crcUpdate(crc, body)
	binary.LittleEndian.PutUint32(header[22:26], crc)

	if f.log != nil {
		f.log.WithFields(logrus.Fields{
			"page_sequence": f.seq,
			"granule":       granule,
			"segments":      len(seg),
			"last":          last,
		}).Debug("oggframer: writing page")
	}

	if _, err := f.w.Write(header); err != nil {
		return fmt.Errorf("oggframer: write header: %w", err)
	}
	if _, err := f.w.Write(seg); err != nil {
		return fmt.Errorf("oggframer: write segment table: %w", err)
	}
	if _, err := f.w.Write(body); err != nil {
		return fmt.Errorf("oggframer: write body: %w", err)
	}
	f.seq++
	return nil
}
