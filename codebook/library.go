// Package codebook provides random-access lookup of precomputed Vorbis
// codebooks from a packed library file, and rebuilds a single compact,
// vendor-stripped codebook into a full spec-conformant Vorbis codebook
// bitstream.
package codebook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ErrNotLoaded is returned by Get when the Library was never successfully
// opened.
var ErrNotLoaded = errors.New("codebook: library not loaded")

// ErrOutOfRange is returned by Get when the requested index is negative or
// not less than Count.
var ErrOutOfRange = errors.New("codebook: index out of range")

// Library is a random-access view over a packed codebook asset:
// data_blob || offsets[0..N], where the last 4 bytes of the file locate
// the offset table and codebook i spans [offsets[i], offsets[i+1]).
// Index N-1 is a sentinel, so N-1 codebooks are addressable. A Library is
// read-only after Open and is safe for concurrent Get calls from
// independent conversions.
type Library struct {
	data    []byte
	offsets []uint32
	log     *logrus.Entry
}

// Open reads the entire codebook library file into memory and parses its
// offset table.
func Open(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codebook: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a codebook library from an already-open reader, reading it
// fully into memory.
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codebook: read library: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Library, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("codebook: library too small (%d bytes)", len(data))
	}
	offsetsStart := binary.LittleEndian.Uint32(data[len(data)-4:])
	if int(offsetsStart) > len(data)-4 {
		return nil, fmt.Errorf("codebook: offset table start %d beyond file size %d", offsetsStart, len(data))
	}
	offsetBytes := data[offsetsStart : len(data)-4]
	if len(offsetBytes)%4 != 0 {
		return nil, fmt.Errorf("codebook: offset table size %d not a multiple of 4", len(offsetBytes))
	}
	n := len(offsetBytes) / 4
	offsets := make([]uint32, n)
	for i := 0; i < n; i++ {
		offsets[i] = binary.LittleEndian.Uint32(offsetBytes[i*4 : i*4+4])
	}
	for i := 1; i < n; i++ {
		if offsets[i] < offsets[i-1] || int(offsets[i]) > int(offsetsStart) {
			return nil, fmt.Errorf("codebook: offset table entry %d (%d) out of order or out of bounds", i, offsets[i])
		}
	}
	return &Library{data: data[:offsetsStart], offsets: offsets}, nil
}

// WithLogger attaches a logger for Debug-level lookups.
func (l *Library) WithLogger(log *logrus.Entry) *Library {
	l.log = log
	return l
}

// Count returns the number of addressable codebooks (N-1, where N is the
// number of offset-table entries, the last being a sentinel).
func (l *Library) Count() int {
	if l == nil || len(l.offsets) == 0 {
		return 0
	}
	return len(l.offsets) - 1
}

// Get returns the compact codebook bytes for index i.
func (l *Library) Get(i int) ([]byte, error) {
	if l == nil || l.data == nil {
		return nil, ErrNotLoaded
	}
	if i < 0 || i >= l.Count() {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, i, l.Count())
	}
	start, end := l.offsets[i], l.offsets[i+1]
	if l.log != nil {
		l.log.WithField("codebook_index", i).Debug("codebook: lookup")
	}
	return l.data[start:end], nil
}
