package wwriff

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSeekPointsAlwaysIncludesZero(t *testing.T) {
	points := seekPoints(nil)
	if !points[0] {
		t.Error("seekPoints(nil) does not include packet 0")
	}
}

func TestSeekPointsDecodesLittleEndianIndices(t *testing.T) {
	table := make([]byte, 8)
	binary.LittleEndian.PutUint32(table[0:4], 5)
	binary.LittleEndian.PutUint32(table[4:8], 9)
	points := seekPoints(table)
	for _, want := range []uint32{0, 5, 9} {
		if !points[want] {
			t.Errorf("seekPoints missing index %d", want)
		}
	}
	if len(points) != 3 {
		t.Errorf("seekPoints = %v, want exactly {0, 5, 9}", points)
	}
}

func TestFixedModeIndexSingleMode(t *testing.T) {
	riff := &WwiseRIFF{}
	info := &HeaderInfo{ModeBlockFlags: []bool{true}}
	if got := fixedModeIndex(riff, info); got != 0 {
		t.Errorf("fixedModeIndex = %d, want 0 for a single-mode file", got)
	}
}

func TestFixedModeIndexModulo(t *testing.T) {
	riff := &WwiseRIFF{}
	riff.Vorbis.BlockSizes[1] = 5
	info := &HeaderInfo{ModeBlockFlags: []bool{false, true}}
	if got := fixedModeIndex(riff, info); got != 1 {
		t.Errorf("fixedModeIndex = %d, want 5%%2 = 1", got)
	}
}

// buildAudioRegion packs packets as Wwise does: a 2-byte little-endian
// length prefix, an optional 4-byte granule at page starts, then payload.
func buildAudioRegion(packets [][]byte, pageStarts map[int]uint32) []byte {
	var buf bytes.Buffer
	for i, p := range packets {
		var length [2]byte
		binary.LittleEndian.PutUint16(length[:], uint16(len(p)))
		buf.Write(length[:])
		if granule, ok := pageStarts[i]; ok {
			var g [4]byte
			binary.LittleEndian.PutUint32(g[:], granule)
			buf.Write(g[:])
		}
		buf.Write(p)
	}
	return buf.Bytes()
}

func TestWritePacketsGranuleMonotonicAndFinalMatchesTotal(t *testing.T) {
	packets := [][]byte{{1, 2, 3}, {4, 5}, {6, 7, 8, 9}}
	audio := buildAudioRegion(packets, map[int]uint32{0: 0})

	riff := &WwiseRIFF{Audio: audio}
	riff.Vorbis.TotalPCMFrames = 999
	riff.Vorbis.BlockSizes = [2]uint8{8, 8}
	info := &HeaderInfo{ModesCount: 1, ModeBlockFlags: []bool{false}, ModeIndexBits: 0}

	var buf bytes.Buffer
	oggw := newTestOggWriter(t, &buf)
	if err := WritePackets(riff, info, oggw, nil); err != nil {
		t.Fatalf("WritePackets: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("WritePackets wrote no bytes")
	}

	// Walk the emitted Ogg pages: granules never decrease, and the final
	// page carries TotalPCMFrames.
	data := buf.Bytes()
	var granules []int64
	for len(data) >= 27 {
		granules = append(granules, int64(binary.LittleEndian.Uint64(data[6:14])))
		nseg := int(data[26])
		bodyLen := 0
		for _, s := range data[27 : 27+nseg] {
			bodyLen += int(s)
		}
		data = data[27+nseg+bodyLen:]
	}
	for i := 1; i < len(granules); i++ {
		if granules[i] < granules[i-1] {
			t.Errorf("page %d granule %d < previous page's %d", i, granules[i], granules[i-1])
		}
	}
	if len(granules) == 0 || granules[len(granules)-1] != 999 {
		t.Errorf("page granules = %v, want final granule 999", granules)
	}
}

func TestWritePacketsRejectsTruncatedLength(t *testing.T) {
	riff := &WwiseRIFF{Audio: []byte{0x01}}
	info := &HeaderInfo{ModesCount: 1, ModeBlockFlags: []bool{false}, ModeIndexBits: 0}
	var buf bytes.Buffer
	oggw := newTestOggWriter(t, &buf)
	if err := WritePackets(riff, info, oggw, nil); err == nil {
		t.Fatal("WritePackets: want error for truncated length prefix")
	}
}

func TestWritePacketsRejectsOversizedPacket(t *testing.T) {
	packets := [][]byte{{1, 2, 3}}
	audio := buildAudioRegion(packets, map[int]uint32{0: 0})
	riff := &WwiseRIFF{Audio: audio}
	riff.Vorbis.MaxPacketSize = 1
	info := &HeaderInfo{ModesCount: 1, ModeBlockFlags: []bool{false}, ModeIndexBits: 0}
	var buf bytes.Buffer
	oggw := newTestOggWriter(t, &buf)
	if err := WritePackets(riff, info, oggw, nil); err == nil {
		t.Fatal("WritePackets: want error when a packet exceeds max_packet_size")
	}
}

func TestWritePacketsRejectsEmptyAudio(t *testing.T) {
	riff := &WwiseRIFF{Audio: nil}
	info := &HeaderInfo{ModesCount: 1, ModeBlockFlags: []bool{false}, ModeIndexBits: 0}
	var buf bytes.Buffer
	oggw := newTestOggWriter(t, &buf)
	if err := WritePackets(riff, info, oggw, nil); err == nil {
		t.Fatal("WritePackets: want error for an empty audio region")
	}
}
