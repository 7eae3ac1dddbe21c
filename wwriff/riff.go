package wwriff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const (
	fourccRIFF = "RIFF"
	fourccWAVE = "WAVE"
	fourccFmt  = "fmt "
	fourccData = "data"
)

// Format tags recognized in the fmt chunk. Only formatVorbis is converted
// by this package; the others are classified so a caller can distinguish
// "not Vorbis, but still a Wwise RIFF" from "not a RIFF at all".
const (
	formatADPCM      = 0x0002
	formatExtensible = 0xFFFE
	formatVorbis     = 0xFFFF
)

// sizeWaveFormatEx, sizeWaveFormatExtensible and sizeVorbisHeader mirror
// soundextract.cpp's #pragma pack(1) struct sizes: WaveFormatEx is 18
// bytes, WaveFormatExtensible adds wSamplesPerBlock+dwChannelMask for 24,
// and VorbisHeader (VorbisHeaderBase+VorbisInfo) is 42. fmt-chunk size
// discrimination (spec.md §4.5) depends on these exact totals.
const (
	sizeWaveFormatEx         = 18
	sizeWaveFormatExtensible = 24
	sizeVorbisHeader         = 42
)

// WaveFormatExtensible mirrors soundextract.cpp's struct of the same name
// field-for-field.
type WaveFormatExtensible struct {
	FormatTag       uint16
	Channels        uint16
	SamplesPerSec   uint32
	AvgBytesPerSec  uint32
	BlockAlign      uint16
	BitsPerSample   uint16
	CbSize          uint16
	SamplesPerBlock uint16
	ChannelMask     uint32
}

// VorbisLoopInfo mirrors soundextract.cpp's VorbisLoopInfo.
type VorbisLoopInfo struct {
	LoopStartPacketOffset uint32
	LoopEndPacketOffset   uint32
	LoopBeginExtra        uint16
	LoopEndExtra          uint16
}

// VorbisHeader mirrors soundextract.cpp's VorbisHeader (VorbisHeaderBase +
// VorbisInfo), the scattered metadata the header synthesizer and packet
// rewriter draw from.
type VorbisHeader struct {
	TotalPCMFrames     uint32
	LoopInfo           VorbisLoopInfo
	SeekTableSize      uint32
	VorbisDataOffset   uint32
	MaxPacketSize      uint16
	LastGranuleExtra   uint16
	DecodeAllocSize    uint32
	DecodeX64AllocSize uint32
	CodebookHash       uint32
	BlockSizes         [2]uint8 // exponents b0, b1; window sizes are 1<<b0, 1<<b1
}

// WwiseRIFF is a parsed Wwise-RIFF container: the fmt chunk's decoded
// metadata plus the setup/audio regions of the data chunk. It owns the
// input buffer for the extent of one conversion and is not safe for
// concurrent use.
type WwiseRIFF struct {
	Format WaveFormatExtensible
	Vorbis VorbisHeader

	// Setup and Audio are disjoint slices of the data chunk, split at
	// Vorbis.VorbisDataOffset: Setup starts with the seek table (sized
	// Vorbis.SeekTableSize) followed by, depending on the decoder
	// variant, inline floor/residue/mapping/mode descriptions; Audio
	// holds the compact audio packets.
	Setup []byte
	Audio []byte

	log *logrus.Entry
}

// WithLogger attaches a logger for Debug-level chunk tracing.
func (w *WwiseRIFF) WithLogger(log *logrus.Entry) *WwiseRIFF {
	w.log = log
	return w
}

// Open parses a Wwise-RIFF asset from r. r is read fully into memory; the
// returned WwiseRIFF holds slices into that buffer.
func Open(r io.Reader) (*WwiseRIFF, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrap(IOFailure, "read input", err)
	}
	return parseRIFF(data)
}

func parseRIFF(data []byte) (*WwiseRIFF, error) {
	if len(data) < 12 {
		return nil, wrap(BadContainer, "file too small for a RIFF header", nil)
	}
	if string(data[0:4]) != fourccRIFF {
		return nil, wrap(BadContainer, fmt.Sprintf("missing RIFF tag (got %q)", data[0:4]), nil)
	}
	if string(data[8:12]) != fourccWAVE {
		return nil, wrap(BadContainer, fmt.Sprintf("missing WAVE tag (got %q)", data[8:12]), nil)
	}

	riff := &WwiseRIFF{}
	var sawFmt, sawData bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		body := pos + 8
		if body+int(size) > len(data) {
			return nil, wrap(BadContainer, fmt.Sprintf("chunk %q size %d exceeds file", id, size), nil)
		}
		chunk := data[body : body+int(size)]

		switch id {
		case fourccFmt:
			if err := riff.parseFmt(chunk); err != nil {
				return nil, err
			}
			sawFmt = true
		case fourccData:
			if err := riff.splitData(chunk); err != nil {
				return nil, err
			}
			sawData = true
		}

		pos = body + int(size)
		if size%2 == 1 { // word-aligned, like zeozeozeo-tag/wav.go's chunk loop
			pos++
		}
	}

	if !sawFmt {
		return nil, wrap(BadContainer, "missing fmt chunk", nil)
	}
	if !sawData {
		return nil, wrap(BadContainer, "missing data chunk", nil)
	}
	return riff, nil
}

func (w *WwiseRIFF) parseFmt(chunk []byte) error {
	if len(chunk) < sizeWaveFormatEx {
		return wrap(BadContainer, fmt.Sprintf("fmt chunk too small (%d bytes)", len(chunk)), nil)
	}
	f := &w.Format
	f.FormatTag = binary.LittleEndian.Uint16(chunk[0:2])
	f.Channels = binary.LittleEndian.Uint16(chunk[2:4])
	f.SamplesPerSec = binary.LittleEndian.Uint32(chunk[4:8])
	f.AvgBytesPerSec = binary.LittleEndian.Uint32(chunk[8:12])
	f.BlockAlign = binary.LittleEndian.Uint16(chunk[12:14])
	f.BitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
	f.CbSize = binary.LittleEndian.Uint16(chunk[16:18])

	switch f.FormatTag {
	case formatADPCM:
		return wrap(UnsupportedFormat, "Wwise ADPCM (0x0002) is not converted by this package", nil)
	case formatExtensible:
		return wrap(UnsupportedFormat, "extensible PCM (0xFFFE) is not converted by this package", nil)
	case formatVorbis:
		// fall through to full parse below
	default:
		return wrap(UnsupportedFormat, fmt.Sprintf("unrecognized fmt tag %#04x", f.FormatTag), nil)
	}

	if len(chunk) < sizeWaveFormatExtensible+sizeVorbisHeader {
		return wrap(BadContainer, "fmt chunk too small for a Vorbis header", nil)
	}
	f.SamplesPerBlock = binary.LittleEndian.Uint16(chunk[18:20])
	f.ChannelMask = binary.LittleEndian.Uint32(chunk[20:24])

	v := &w.Vorbis
	b := chunk[sizeWaveFormatExtensible : sizeWaveFormatExtensible+sizeVorbisHeader]
	v.TotalPCMFrames = binary.LittleEndian.Uint32(b[0:4])
	v.LoopInfo.LoopStartPacketOffset = binary.LittleEndian.Uint32(b[4:8])
	v.LoopInfo.LoopEndPacketOffset = binary.LittleEndian.Uint32(b[8:12])
	v.LoopInfo.LoopBeginExtra = binary.LittleEndian.Uint16(b[12:14])
	v.LoopInfo.LoopEndExtra = binary.LittleEndian.Uint16(b[14:16])
	v.SeekTableSize = binary.LittleEndian.Uint32(b[16:20])
	v.VorbisDataOffset = binary.LittleEndian.Uint32(b[20:24])
	v.MaxPacketSize = binary.LittleEndian.Uint16(b[24:26])
	v.LastGranuleExtra = binary.LittleEndian.Uint16(b[26:28])
	v.DecodeAllocSize = binary.LittleEndian.Uint32(b[28:32])
	v.DecodeX64AllocSize = binary.LittleEndian.Uint32(b[32:36])
	v.CodebookHash = binary.LittleEndian.Uint32(b[36:40])
	v.BlockSizes[0] = b[40]
	v.BlockSizes[1] = b[41]

	if w.log != nil {
		w.log.WithFields(logrus.Fields{
			"channels":           f.Channels,
			"sample_rate":        f.SamplesPerSec,
			"total_pcm_frames":   v.TotalPCMFrames,
			"vorbis_data_offset": v.VorbisDataOffset,
			"codebook_hash":      v.CodebookHash,
		}).Debug("wwriff: parsed fmt chunk")
	}
	return nil
}

func (w *WwiseRIFF) splitData(chunk []byte) error {
	offset := int(w.Vorbis.VorbisDataOffset)
	if offset < 0 || offset > len(chunk) {
		return wrap(BadContainer, fmt.Sprintf("vorbis_data_offset %d exceeds data chunk size %d", offset, len(chunk)), nil)
	}
	w.Setup = chunk[:offset]
	w.Audio = chunk[offset:]
	if int(w.Vorbis.SeekTableSize) > len(w.Setup) {
		return wrap(BadContainer, fmt.Sprintf("seek_table_size %d exceeds setup region %d", w.Vorbis.SeekTableSize, len(w.Setup)), nil)
	}
	return nil
}

// SeekTable returns the raw seek table bytes at the front of Setup, sized
// per Vorbis.SeekTableSize.
func (w *WwiseRIFF) SeekTable() []byte {
	return w.Setup[:w.Vorbis.SeekTableSize]
}

// InlineSetup returns the portion of Setup following the seek table: the
// codebook count and codebooks (compact codebooks for the inline decoder
// variant, external library indices otherwise), followed for the inline
// variant by the floor/residue/mapping/mode description.
func (w *WwiseRIFF) InlineSetup() []byte {
	return w.Setup[w.Vorbis.SeekTableSize:]
}
