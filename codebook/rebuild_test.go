package codebook

import (
	"bytes"
	"testing"

	"github.com/wwiseogg/wwriff/bitstream"
)

// decodeFull re-parses a rebuilt codebook's bits back out of the
// full, spec-width wire format, independent of the Rebuild code path, so
// the round-trip tests below can't pass by sharing a bug with Rebuild.
type fullCodebook struct {
	dimensions uint64
	entries    uint64
	ordered    bool
	lengths    []uint64 // unordered: sparse flag, then one length per used entry; ordered: initial length, then (length, number) per run
	lookupType uint64
	min, delta uint64
	valueBits  uint64
	sequenceP  uint64
	multiplic  []uint64
}

func decodeFull(t *testing.T, data []byte, entryCount int, quantvals int) fullCodebook {
	t.Helper()
	r := bitstream.NewReader(bytes.NewReader(data))
	sync, err := r.ReadBits(24)
	if err != nil || sync != syncPattern {
		t.Fatalf("sync pattern = %#x, err %v", sync, err)
	}
	var cb fullCodebook
	cb.dimensions, _ = r.ReadBits(16)
	cb.entries, _ = r.ReadBits(24)
	ordered, _ := r.ReadBits(1)
	cb.ordered = ordered != 0
	if cb.ordered {
		initial, _ := r.ReadBits(5)
		cb.lengths = append(cb.lengths, initial)
		current := uint64(0)
		length := initial
		for current < cb.entries {
			width := bitstream.Ilog(uint32(cb.entries - current))
			number, _ := r.ReadBits(width)
			cb.lengths = append(cb.lengths, length, number)
			current += number
			length++
		}
	} else {
		sparse, _ := r.ReadBits(1)
		cb.lengths = append(cb.lengths, sparse)
		for i := 0; i < entryCount; i++ {
			if sparse != 0 {
				present, _ := r.ReadBits(1)
				if present == 0 {
					continue
				}
			}
			// The Vorbis setup header's codeword-length field is biased
			// by one (decoder computes length = field + 1); a real
			// standards decoder would do the same, so this verifier must
			// too rather than taking the raw field as the actual length.
			field, _ := r.ReadBits(5)
			cb.lengths = append(cb.lengths, field+1)
		}
	}
	cb.lookupType, _ = r.ReadBits(4)
	if cb.lookupType == 1 || cb.lookupType == 2 {
		cb.min, _ = r.ReadBits(32)
		cb.delta, _ = r.ReadBits(32)
		cb.valueBits, _ = r.ReadBits(4)
		cb.sequenceP, _ = r.ReadBits(1)
		width := uint(cb.valueBits) + 1
		for i := 0; i < quantvals; i++ {
			v, _ := r.ReadBits(width)
			cb.multiplic = append(cb.multiplic, v)
		}
	}
	return cb
}

func TestRebuildUnorderedDense(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(2, 4)  // dimensions
	w.WriteBits(4, 14) // entries
	w.WriteBits(0, 1)  // ordered = false
	w.WriteBits(3, 3)  // codeword length width
	w.WriteBits(0, 1)  // sparse = false
	rawLengths := []uint64{0, 1, 2, 3}
	for _, l := range rawLengths {
		w.WriteBits(l, 3)
	}
	w.WriteBits(0, 2) // lookup_type = 0
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	dst := bitstream.NewWriter(&out)
	if err := Rebuild(bitstream.NewReader(bytes.NewReader(buf.Bytes())), dst); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := dst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := decodeFull(t, out.Bytes(), 4, 0)
	if got.dimensions != 2 || got.entries != 4 {
		t.Fatalf("dimensions/entries = %d/%d, want 2/4", got.dimensions, got.entries)
	}
	if got.ordered {
		t.Fatal("expected ordered = false")
	}
	if got.lengths[0] != 0 {
		t.Fatalf("expected dense (sparse=0), got sparse flag %d", got.lengths[0])
	}
	wantLengths := []uint64{1, 2, 3, 4}
	gotLengths := got.lengths[1:]
	if len(gotLengths) != len(wantLengths) {
		t.Fatalf("got %d lengths, want %d", len(gotLengths), len(wantLengths))
	}
	for i, l := range wantLengths {
		if gotLengths[i] != l {
			t.Errorf("length[%d] = %d, want %d", i, gotLengths[i], l)
		}
	}
	if got.lookupType != 0 {
		t.Errorf("lookup_type = %d, want 0", got.lookupType)
	}
}

func TestRebuildOrderedRuns(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(1, 4)  // dimensions
	w.WriteBits(5, 14) // entries
	w.WriteBits(1, 1)  // ordered = true
	w.WriteBits(1, 5)  // initial length = 1
	// current=0, entries-current=5, ilog(5)=3
	w.WriteBits(3, bitstream.Ilog(5)) // 3 entries at length 1
	// current=3, entries-current=2, ilog(2)=2
	w.WriteBits(2, bitstream.Ilog(2)) // 2 entries at length 2
	w.WriteBits(0, 2)                 // lookup_type = 0
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	dst := bitstream.NewWriter(&out)
	if err := Rebuild(bitstream.NewReader(bytes.NewReader(buf.Bytes())), dst); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := dst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := decodeFull(t, out.Bytes(), 5, 0)
	if !got.ordered {
		t.Fatal("expected ordered = true")
	}
	if got.lengths[0] != 1 {
		t.Errorf("initial length = %d, want 1", got.lengths[0])
	}
	// lengths holds (length, number) pairs per run after the initial value.
	if len(got.lengths) != 5 {
		t.Fatalf("got %d length entries, want 5 (initial + 2 runs)", len(got.lengths))
	}
	if got.lengths[1] != 1 || got.lengths[2] != 3 {
		t.Errorf("run 1 = (length %d, number %d), want (1, 3)", got.lengths[1], got.lengths[2])
	}
	if got.lengths[3] != 2 || got.lengths[4] != 2 {
		t.Errorf("run 2 = (length %d, number %d), want (2, 2)", got.lengths[3], got.lengths[4])
	}
}

func TestRebuildLookupType1(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(1, 4)  // dimensions
	w.WriteBits(4, 14) // entries
	w.WriteBits(0, 1)  // ordered = false
	w.WriteBits(3, 3)  // codeword length width
	w.WriteBits(0, 1)  // sparse = false
	for i := 0; i < 4; i++ {
		w.WriteBits(0, 3) // all length 1
	}
	w.WriteBits(1, 2) // lookup_type = 1

	min := uint64(0x3F800000)
	delta := uint64(0x3D000000)
	w.WriteBits(min, 32)
	w.WriteBits(delta, 32)
	w.WriteBits(3, 4) // value_bits raw = 3 -> actual width 4
	w.WriteBits(0, 1) // sequence_p = false

	quantvals := ValsPerBook(4, 1) // v^1<=4, (v+1)^1>4 => v=4
	if quantvals != 4 {
		t.Fatalf("ValsPerBook(4,1) = %d, want 4", quantvals)
	}
	multiplicands := []uint64{0, 5, 10, 15}
	for _, m := range multiplicands {
		w.WriteBits(m, 4)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	dst := bitstream.NewWriter(&out)
	if err := Rebuild(bitstream.NewReader(bytes.NewReader(buf.Bytes())), dst); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := dst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := decodeFull(t, out.Bytes(), 4, int(quantvals))
	if got.lookupType != 1 {
		t.Fatalf("lookup_type = %d, want 1", got.lookupType)
	}
	if got.min != min || got.delta != delta {
		t.Errorf("min/delta = %#x/%#x, want %#x/%#x", got.min, got.delta, min, delta)
	}
	if got.valueBits != 3 {
		t.Errorf("value_bits = %d, want 3", got.valueBits)
	}
	if len(got.multiplic) != len(multiplicands) {
		t.Fatalf("got %d multiplicands, want %d", len(got.multiplic), len(multiplicands))
	}
	for i, m := range multiplicands {
		if got.multiplic[i] != m {
			t.Errorf("multiplicand[%d] = %d, want %d", i, got.multiplic[i], m)
		}
	}
}

func TestRebuildRejectsReservedLookupType(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(1, 4)
	w.WriteBits(1, 14)
	w.WriteBits(0, 1)
	w.WriteBits(3, 3)
	w.WriteBits(0, 1)
	w.WriteBits(0, 3)
	w.WriteBits(3, 2) // lookup_type = 3, reserved
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	dst := bitstream.NewWriter(&out)
	err := Rebuild(bitstream.NewReader(bytes.NewReader(buf.Bytes())), dst)
	if err == nil {
		t.Fatal("expected error for reserved lookup_type")
	}
}

func TestRebuildRejectsOrderedOverrun(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(1, 4)  // dimensions
	w.WriteBits(3, 14) // entries = 3
	w.WriteBits(1, 1)  // ordered
	w.WriteBits(1, 5)  // initial length
	// current=0, remaining=3, ilog(3)=2 bits; consume 1 entry.
	w.WriteBits(1, bitstream.Ilog(3))
	// current=1, remaining=2, ilog(2)=2 bits (max representable 3); claim
	// 3 more entries though only 2 remain, forcing an overrun.
	w.WriteBits(3, bitstream.Ilog(2))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	dst := bitstream.NewWriter(&out)
	err := Rebuild(bitstream.NewReader(bytes.NewReader(buf.Bytes())), dst)
	if err == nil {
		t.Fatal("expected error for ordered run overrun")
	}
}

func TestValsPerBook(t *testing.T) {
	cases := []struct {
		entries, dimensions, want uint32
	}{
		{4, 1, 4},
		{256, 2, 16},
		{100, 2, 10},
		{3, 2, 1},
		{1, 1, 1},
	}
	for _, c := range cases {
		got := ValsPerBook(c.entries, c.dimensions)
		if got != c.want {
			t.Errorf("ValsPerBook(%d, %d) = %d, want %d", c.entries, c.dimensions, got, c.want)
		}
		// invariant the algorithm is built to satisfy
		var lo, hi uint64 = 1, 1
		for i := uint32(0); i < c.dimensions; i++ {
			lo *= uint64(got)
			hi *= uint64(got + 1)
		}
		if lo > uint64(c.entries) || hi <= uint64(c.entries) {
			t.Errorf("ValsPerBook(%d, %d) = %d violates v^d<=entries<(v+1)^d", c.entries, c.dimensions, got)
		}
	}
}
