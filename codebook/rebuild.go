package codebook

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/bitstream"
)

const syncPattern = 0x564342

// ErrBadCodebook is returned when a compact codebook bitstream is
// malformed: a reserved lookup type, a nonsense codeword-length width, or
// an ordered run that overruns the entry count.
var ErrBadCodebook = errors.New("codebook: malformed compact codebook")

// Rebuild decodes one compact, vendor-stripped codebook from src and
// writes a full spec-conformant Vorbis codebook (including the 0x564342
// sync pattern) to dst. It does not call dst.Close; the caller controls
// packet/page framing.
//
// The compact encoding is not independently documented in the retrieval
// pack used to build this package (codebook.h declares
// codebook_library::rebuild but its implementation was not present); the
// field order below follows spec.md §4.3/§9 together with the standard
// Tremor/libvorbis codebook decode algorithm those sections describe.
func Rebuild(src *bitstream.Reader, dst *bitstream.Writer) error {
	return rebuild(src, dst, nil)
}

// RebuildWithLogger is Rebuild with Debug-level field tracing attached.
func RebuildWithLogger(src *bitstream.Reader, dst *bitstream.Writer, log *logrus.Entry) error {
	return rebuild(src, dst, log)
}

// RebuildFromLibrary looks up compact codebook i in lib and rebuilds it
// onto dst.
func RebuildFromLibrary(lib *Library, i int, dst *bitstream.Writer) error {
	data, err := lib.Get(i)
	if err != nil {
		return fmt.Errorf("codebook: rebuild index %d: %w", i, err)
	}
	return Rebuild(bitstream.NewReader(bytes.NewReader(data)), dst)
}

func rebuild(src *bitstream.Reader, dst *bitstream.Writer, log *logrus.Entry) error {
	if err := dst.WriteBits(syncPattern, 24); err != nil {
		return fmt.Errorf("codebook: write sync pattern: %w", err)
	}

	dimensions, err := src.ReadBits(4)
	if err != nil {
		return fmt.Errorf("codebook: read dimensions: %w", err)
	}
	if err := dst.WriteBits(dimensions, 16); err != nil {
		return fmt.Errorf("codebook: write dimensions: %w", err)
	}

	entries, err := src.ReadBits(14)
	if err != nil {
		return fmt.Errorf("codebook: read entries: %w", err)
	}
	if err := dst.WriteBits(entries, 24); err != nil {
		return fmt.Errorf("codebook: write entries: %w", err)
	}

	ordered, err := src.ReadBits(1)
	if err != nil {
		return fmt.Errorf("codebook: read ordered flag: %w", err)
	}
	if err := dst.WriteBits(ordered, 1); err != nil {
		return err
	}

	if ordered != 0 {
		if err := rebuildOrderedLengths(src, dst, uint32(entries)); err != nil {
			return err
		}
	} else if err := rebuildUnorderedLengths(src, dst, uint32(entries)); err != nil {
		return err
	}

	// The compact form packs lookup_type in 2 bits rather than the full
	// header's 4; only 0, 1 and 2 are defined, so 3 is rejected outright.
	lookupType, err := src.ReadBits(2)
	if err != nil {
		return fmt.Errorf("codebook: read lookup type: %w", err)
	}
	if lookupType > 2 {
		return fmt.Errorf("%w: reserved lookup_type %d", ErrBadCodebook, lookupType)
	}
	if err := dst.WriteBits(lookupType, 4); err != nil {
		return fmt.Errorf("codebook: write lookup type: %w", err)
	}

	switch lookupType {
	case 0:
		// no lookup table
	case 1, 2:
		if err := rebuildLookupTable(src, dst, uint32(dimensions), uint32(entries), uint32(lookupType)); err != nil {
			return err
		}
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"dimensions":  dimensions,
			"entries":     entries,
			"ordered":     ordered != 0,
			"lookup_type": lookupType,
		}).Debug("codebook: rebuilt")
	}
	return nil
}

func rebuildOrderedLengths(src *bitstream.Reader, dst *bitstream.Writer, entries uint32) error {
	initial, err := src.ReadBits(5)
	if err != nil {
		return fmt.Errorf("codebook: read initial ordered length: %w", err)
	}
	if err := dst.WriteBits(initial, 5); err != nil {
		return fmt.Errorf("codebook: write initial ordered length: %w", err)
	}
	var current uint32
	for current < entries {
		width := bitstream.Ilog(entries - current)
		number, err := src.ReadBits(width)
		if err != nil {
			return fmt.Errorf("codebook: read ordered run length: %w", err)
		}
		if err := dst.WriteBits(number, width); err != nil {
			return fmt.Errorf("codebook: write ordered run length: %w", err)
		}
		current += uint32(number)
		if current > entries {
			return fmt.Errorf("%w: ordered run overruns entries (%d > %d)", ErrBadCodebook, current, entries)
		}
	}
	return nil
}

func rebuildUnorderedLengths(src *bitstream.Reader, dst *bitstream.Writer, entries uint32) error {
	lengthBits, err := src.ReadBits(3)
	if err != nil {
		return fmt.Errorf("codebook: read codeword length width: %w", err)
	}
	if lengthBits == 0 || lengthBits > 5 {
		return fmt.Errorf("%w: nonsense codeword length width %d", ErrBadCodebook, lengthBits)
	}
	sparse, err := src.ReadBits(1)
	if err != nil {
		return fmt.Errorf("codebook: read sparse flag: %w", err)
	}
	if err := dst.WriteBits(sparse, 1); err != nil {
		return fmt.Errorf("codebook: write sparse flag: %w", err)
	}
	for i := uint32(0); i < entries; i++ {
		present := uint64(1)
		if sparse != 0 {
			present, err = src.ReadBits(1)
			if err != nil {
				return fmt.Errorf("codebook: read entry %d presence: %w", i, err)
			}
			if err := dst.WriteBits(present, 1); err != nil {
				return fmt.Errorf("codebook: write entry %d presence: %w", i, err)
			}
		}
		if present == 0 {
			continue
		}
		raw, err := src.ReadBits(uint(lengthBits))
		if err != nil {
			return fmt.Errorf("codebook: read entry %d codeword length: %w", i, err)
		}
		// The compact field and the full Vorbis setup field both store
		// (actual length - 1); actual is only computed here to validate
		// range, the raw bias-1 value is what gets written through.
		actual := raw + 1
		if actual < 1 || actual > 32 {
			return fmt.Errorf("%w: entry %d codeword length %d out of range", ErrBadCodebook, i, actual)
		}
		if err := dst.WriteBits(raw, 5); err != nil {
			return fmt.Errorf("codebook: write entry %d codeword length: %w", i, err)
		}
	}
	return nil
}

func rebuildLookupTable(src *bitstream.Reader, dst *bitstream.Writer, dimensions, entries, lookupType uint32) error {
	min, err := src.ReadBits(32)
	if err != nil {
		return fmt.Errorf("codebook: read lookup min: %w", err)
	}
	if err := dst.WriteBits(min, 32); err != nil {
		return fmt.Errorf("codebook: write lookup min: %w", err)
	}
	delta, err := src.ReadBits(32)
	if err != nil {
		return fmt.Errorf("codebook: read lookup delta: %w", err)
	}
	if err := dst.WriteBits(delta, 32); err != nil {
		return fmt.Errorf("codebook: write lookup delta: %w", err)
	}
	valueBits, err := src.ReadBits(4)
	if err != nil {
		return fmt.Errorf("codebook: read value_bits: %w", err)
	}
	if err := dst.WriteBits(valueBits, 4); err != nil {
		return fmt.Errorf("codebook: write value_bits: %w", err)
	}
	sequenceP, err := src.ReadBits(1)
	if err != nil {
		return fmt.Errorf("codebook: read sequence_p: %w", err)
	}
	if err := dst.WriteBits(sequenceP, 1); err != nil {
		return fmt.Errorf("codebook: write sequence_p: %w", err)
	}

	var quantvals uint32
	if lookupType == 1 {
		quantvals = ValsPerBook(entries, dimensions)
	} else {
		quantvals = entries * dimensions
	}
	width := uint(valueBits) + 1
	for i := uint32(0); i < quantvals; i++ {
		v, err := src.ReadBits(width)
		if err != nil {
			return fmt.Errorf("codebook: read multiplicand %d: %w", i, err)
		}
		if err := dst.WriteBits(v, width); err != nil {
			return fmt.Errorf("codebook: write multiplicand %d: %w", i, err)
		}
	}
	return nil
}

// ValsPerBook returns the unique v >= 1 such that v^dimensions <= entries
// and (v+1)^dimensions > entries: the quantvals count for lookup_type 1.
// Grounded on codebook.h's _book_maptype1_quantvals (itself lifted from
// Tremor's lowmem decoder): start from an ilog-based hint and walk +-1
// until the invariant holds.
func ValsPerBook(entries, dimensions uint32) uint32 {
	if dimensions == 0 {
		return 0
	}
	bits := bitstream.Ilog(entries)
	var vals uint32 = 1
	if bits > 0 {
		vals = entries >> (uint(bits-1) * uint(dimensions-1) / uint(dimensions))
		if vals == 0 {
			vals = 1
		}
	}
	for {
		var acc, acc1 uint64 = 1, 1
		for i := uint32(0); i < dimensions; i++ {
			acc *= uint64(vals)
			acc1 *= uint64(vals + 1)
		}
		if acc <= uint64(entries) && acc1 > uint64(entries) {
			return vals
		}
		if acc > uint64(entries) {
			vals--
		} else {
			vals++
		}
	}
}
