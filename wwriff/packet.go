package wwriff

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/bitstream"
)

// seekPoints decodes the raw seek table into the set of packet indices
// (0-based) that begin a new Ogg page. Entries are 4-byte little-endian
// packet indices; packet 0 always begins a page regardless of whether the
// table lists it, since the first audio packet necessarily opens the
// first audio page.
func seekPoints(table []byte) map[uint32]bool {
	points := map[uint32]bool{0: true}
	for i := 0; i+4 <= len(table); i += 4 {
		points[binary.LittleEndian.Uint32(table[i:i+4])] = true
	}
	return points
}

// fixedModeIndex resolves the single mode every packet in the file is
// assumed to use. spec.md §4.7 names VorbisHeader.uBlockSizes[1] as the
// source of "a conversion mode recorded in" the header; this module reads
// that field as a direct mode index (reduced modulo the mode count) rather
// than per-packet metadata, since no per-packet mode indicator is
// otherwise documented — see DESIGN.md.
func fixedModeIndex(riff *WwiseRIFF, info *HeaderInfo) int {
	if len(info.ModeBlockFlags) <= 1 {
		return 0
	}
	return int(riff.Vorbis.BlockSizes[1]) % len(info.ModeBlockFlags)
}

// WritePackets restores mode-index/window bits on every audio packet in
// riff.Audio and streams them through oggw, closing with a final page
// whose granule equals TotalPCMFrames (spec.md §8's granule-monotonicity
// property holds regardless of last_granule_extra).
func WritePackets(riff *WwiseRIFF, info *HeaderInfo, oggw *bitstream.OggWriter, log *logrus.Entry) error {
	points := seekPoints(riff.SeekTable())
	modeIndex := fixedModeIndex(riff, info)
	longBlock := info.ModeBlockFlags[modeIndex]

	blockExp := riff.Vorbis.BlockSizes[0]
	if longBlock {
		blockExp = riff.Vorbis.BlockSizes[1]
	}
	samplesPerPacket := int64(1) << blockExp / 2

	audio := riff.Audio
	pos := 0
	packetIndex := uint32(0)
	sawPacket := false
	var granule int64
	packetsInPage := 0

	for pos < len(audio) {
		sawPacket = true

		if len(audio)-pos < 2 {
			return wrap(BadPacket, "truncated packet length prefix", nil)
		}
		length := int(binary.LittleEndian.Uint16(audio[pos : pos+2]))
		pos += 2

		isPageStart := points[packetIndex]
		if isPageStart && packetsInPage > 0 {
			if err := oggw.FlushPage(granule, false); err != nil {
				return wrap(IOFailure, "flush audio page", err)
			}
			packetsInPage = 0
		}

		if isPageStart {
			if pos+4 > len(audio) {
				return wrap(BadPacket, "truncated packet granule", nil)
			}
			granule = int64(binary.LittleEndian.Uint32(audio[pos : pos+4]))
			pos += 4
		}

		if pos+length > len(audio) {
			return wrap(BadPacket, "packet payload exceeds audio region", nil)
		}
		if riff.Vorbis.MaxPacketSize != 0 && length > int(riff.Vorbis.MaxPacketSize) {
			return wrap(BadPacket, "packet exceeds max_packet_size", nil)
		}
		payload := audio[pos : pos+length]
		pos += length

		if err := oggw.WriteBits(uint64(modeIndex), info.ModeIndexBits); err != nil {
			return wrap(IOFailure, "write mode index", err)
		}
		if longBlock {
			// Every packet shares the same fixed mode (see
			// fixedModeIndex), so there is never a short/long
			// transition to describe: both window flags mirror the
			// file's one active mode.
			if err := oggw.WriteBits(1, 1); err != nil { // previous window
				return wrap(IOFailure, "write previous window flag", err)
			}
			if err := oggw.WriteBits(1, 1); err != nil { // next window
				return wrap(IOFailure, "write next window flag", err)
			}
		}
		for _, b := range payload {
			if err := oggw.WriteBits(uint64(b), 8); err != nil {
				return wrap(IOFailure, "write packet payload", err)
			}
		}
		if err := oggw.FlushPacket(); err != nil {
			return wrap(IOFailure, "flush audio packet", err)
		}
		packetsInPage++

		if packetIndex > 0 { // the first packet produces no output samples
			granule += samplesPerPacket
		}
		packetIndex++

		if log != nil {
			log.WithFields(logrus.Fields{
				"packet_index": packetIndex - 1,
				"packet_bytes": length,
				"granule":      granule,
			}).Debug("wwriff: wrote audio packet")
		}
	}
	if !sawPacket {
		return wrap(BadPacket, "audio region contains no packets", nil)
	}

	final := int64(riff.Vorbis.TotalPCMFrames)
	if err := oggw.FlushPage(final, true); err != nil {
		return wrap(IOFailure, "flush final audio page", err)
	}
	return nil
}
