package wwriff

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/bitstream"
	"github.com/wwiseogg/wwriff/codebook"
)

// DecoderVariant selects how the setup header's floor/residue/mapping/mode
// sequence is sourced, resolving spec.md's Open Question (a). VariantInline
// means the bytes following the codebook list in the setup region are a
// full Vorbis-width floor/residue/mapping/mode sequence to copy through;
// the external variants substitute a fixed built-in template keyed by
// codebook_hash (see setuptemplate.go) because the source bytes aren't
// present at all in that layout.
type DecoderVariant int

const (
	VariantInline DecoderVariant = iota
	VariantExternalStandard
	VariantExternalAoTuV
)

func (v DecoderVariant) String() string {
	switch v {
	case VariantInline:
		return "inline"
	case VariantExternalStandard:
		return "standard"
	case VariantExternalAoTuV:
		return "aotuv"
	default:
		return "unknown"
	}
}

// ParseDecoderVariant maps a config.Manifest variant string onto a
// DecoderVariant. "external" is accepted as a synonym for "standard": the
// generic external-library template, for manifests that don't distinguish
// which codebook library the caller bundled.
func ParseDecoderVariant(s string) (DecoderVariant, error) {
	switch s {
	case "inline":
		return VariantInline, nil
	case "external", "standard":
		return VariantExternalStandard, nil
	case "aotuv":
		return VariantExternalAoTuV, nil
	default:
		return 0, wrap(BadContainer, fmt.Sprintf("unknown decoder variant %q", s), nil)
	}
}

const vendorString = "wwriff ogg reconstruction"

// externalCodebookIndexBits is the width used to reference a codebook in
// the external library from the compact setup region, chosen wide enough
// for any codebook library bundled in practice.
const externalCodebookIndexBits = 16

// HeaderInfo carries the pieces of the setup header the audio packet
// rewriter (C7) needs: how many bits select a mode, and whether each mode
// is a long block (requiring the extra window-flag bits on the packets
// that use it).
type HeaderInfo struct {
	ModesCount     int
	ModeBlockFlags []bool
	ModeIndexBits  uint
}

// WriteHeaders emits the three Vorbis headers — identification, comment,
// setup — onto oggw, each flushed as its own Ogg page, per spec.md §4.6.
func WriteHeaders(riff *WwiseRIFF, lib *codebook.Library, variant DecoderVariant, oggw *bitstream.OggWriter, log *logrus.Entry) (*HeaderInfo, error) {
	if err := writeIdentification(riff, oggw); err != nil {
		return nil, err
	}
	if err := oggw.FlushPage(-1, false); err != nil {
		return nil, wrap(IOFailure, "flush identification page", err)
	}

	if err := writeComment(oggw); err != nil {
		return nil, err
	}
	if err := oggw.FlushPage(-1, false); err != nil {
		return nil, wrap(IOFailure, "flush comment page", err)
	}

	info, err := writeSetup(riff, lib, variant, oggw, log)
	if err != nil {
		return nil, err
	}
	if err := oggw.FlushPage(0, false); err != nil {
		return nil, wrap(IOFailure, "flush setup page", err)
	}
	return info, nil
}

func writeIdentification(riff *WwiseRIFF, oggw *bitstream.OggWriter) error {
	w := func(v uint64, n uint) error { return oggw.WriteBits(v, n) }
	if err := w(0x01, 8); err != nil {
		return wrap(IOFailure, "write ident packet type", err)
	}
	for _, c := range []byte("vorbis") {
		if err := w(uint64(c), 8); err != nil {
			return wrap(IOFailure, "write ident signature", err)
		}
	}
	if err := w(0, 32); err != nil { // vorbis_version
		return wrap(IOFailure, "write vorbis_version", err)
	}
	if err := w(uint64(riff.Format.Channels), 8); err != nil {
		return wrap(IOFailure, "write audio_channels", err)
	}
	if err := w(uint64(riff.Format.SamplesPerSec), 32); err != nil {
		return wrap(IOFailure, "write audio_sample_rate", err)
	}
	if err := w(0, 32); err != nil { // bitrate_maximum
		return wrap(IOFailure, "write bitrate_maximum", err)
	}
	if err := w(0, 32); err != nil { // bitrate_nominal
		return wrap(IOFailure, "write bitrate_nominal", err)
	}
	if err := w(0, 32); err != nil { // bitrate_minimum
		return wrap(IOFailure, "write bitrate_minimum", err)
	}
	blocksizeByte := uint64(riff.Vorbis.BlockSizes[1])<<4 | uint64(riff.Vorbis.BlockSizes[0]&0x0F)
	if err := w(blocksizeByte, 8); err != nil {
		return wrap(IOFailure, "write blocksizes", err)
	}
	if err := w(1, 1); err != nil { // framing
		return wrap(IOFailure, "write ident framing bit", err)
	}
	if err := oggw.FlushPacket(); err != nil {
		return wrap(IOFailure, "flush ident packet", err)
	}
	return nil
}

func writeComment(oggw *bitstream.OggWriter) error {
	w := func(v uint64, n uint) error { return oggw.WriteBits(v, n) }
	if err := w(0x03, 8); err != nil {
		return wrap(IOFailure, "write comment packet type", err)
	}
	for _, c := range []byte("vorbis") {
		if err := w(uint64(c), 8); err != nil {
			return wrap(IOFailure, "write comment signature", err)
		}
	}
	vendor := []byte(vendorString)
	if err := w(uint64(len(vendor)), 32); err != nil {
		return wrap(IOFailure, "write vendor length", err)
	}
	for _, c := range vendor {
		if err := w(uint64(c), 8); err != nil {
			return wrap(IOFailure, "write vendor string", err)
		}
	}
	if err := w(0, 32); err != nil { // comment count
		return wrap(IOFailure, "write comment count", err)
	}
	if err := w(1, 1); err != nil { // framing
		return wrap(IOFailure, "write comment framing bit", err)
	}
	if err := oggw.FlushPacket(); err != nil {
		return wrap(IOFailure, "flush comment packet", err)
	}
	return nil
}

func writeSetup(riff *WwiseRIFF, lib *codebook.Library, variant DecoderVariant, oggw *bitstream.OggWriter, log *logrus.Entry) (*HeaderInfo, error) {
	w := func(v uint64, n uint) error { return oggw.WriteBits(v, n) }
	if err := w(0x05, 8); err != nil {
		return nil, wrap(IOFailure, "write setup packet type", err)
	}
	for _, c := range []byte("vorbis") {
		if err := w(uint64(c), 8); err != nil {
			return nil, wrap(IOFailure, "write setup signature", err)
		}
	}

	src := bitstream.NewReader(bytes.NewReader(riff.InlineSetup()))

	ncbRaw, err := src.ReadBits(8)
	if err != nil {
		return nil, wrap(BadCodebook, "read codebook count", err)
	}
	ncb := int(ncbRaw) + 1
	if err := w(ncbRaw, 8); err != nil {
		return nil, wrap(IOFailure, "write codebook count", err)
	}

	for i := 0; i < ncb; i++ {
		switch variant {
		case VariantInline:
			if err := codebook.Rebuild(src, oggw.Inner()); err != nil {
				return nil, wrap(BadCodebook, fmt.Sprintf("rebuild inline codebook %d", i), err)
			}
		default:
			idx, err := src.ReadBits(externalCodebookIndexBits)
			if err != nil {
				return nil, wrap(BadCodebook, fmt.Sprintf("read external codebook index %d", i), err)
			}
			if lib == nil {
				return nil, wrap(BadCodebook, "external decoder variant requires a codebook library", nil)
			}
			if err := codebook.RebuildFromLibrary(lib, int(idx), oggw.Inner()); err != nil {
				return nil, wrap(BadCodebook, fmt.Sprintf("rebuild codebook %d from library (index %d)", i, idx), err)
			}
		}
	}

	// Time-domain transform count is a Vorbis-spec constant: exactly one
	// transform, value 0.
	if err := w(0, 6); err != nil {
		return nil, wrap(IOFailure, "write time count", err)
	}
	if err := w(0, 16); err != nil {
		return nil, wrap(IOFailure, "write time placeholder", err)
	}

	var info *HeaderInfo
	if variant == VariantInline {
		info, err = copyInlineStructures(src, oggw, int(riff.Format.Channels))
		if err != nil {
			return nil, err
		}
	} else {
		info, err = writeTemplate(variant, oggw, int(riff.Format.Channels))
		if err != nil {
			return nil, err
		}
	}

	if err := w(1, 1); err != nil { // final framing bit
		return nil, wrap(IOFailure, "write setup framing bit", err)
	}
	if err := oggw.FlushPacket(); err != nil {
		return nil, wrap(IOFailure, "flush setup packet", err)
	}
	if log != nil {
		log.WithFields(logrus.Fields{
			"codebook_count": ncb,
			"variant":        variant.String(),
			"modes_count":    info.ModesCount,
		}).Debug("wwriff: wrote setup header")
	}
	return info, nil
}
