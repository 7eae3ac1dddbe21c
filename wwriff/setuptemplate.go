package wwriff

import (
	"github.com/wwiseogg/wwriff/bitstream"
)

// copyInlineStructures re-emits the floor, residue, mapping and mode
// sequences that follow the codebook list in an inline setup region.
// Per spec.md §4.6(a), spec.md gives a reinflation sub-algorithm only for
// codebooks (§4.3/§9); no alternate narrower wire width is documented for
// floors/residues/mappings/modes, so this module reads them as already
// being in full Vorbis-spec bit widths and copies them through losslessly,
// tracking the mode count and per-mode block flags C7 needs along the way.
func copyInlineStructures(src *bitstream.Reader, dst *bitstream.OggWriter, channels int) (*HeaderInfo, error) {
	if err := copyFloors(src, dst); err != nil {
		return nil, err
	}
	if err := copyResidues(src, dst); err != nil {
		return nil, err
	}
	if err := copyMappings(src, dst, channels); err != nil {
		return nil, err
	}
	return copyModes(src, dst)
}

func copyBits(src *bitstream.Reader, dst *bitstream.OggWriter, n uint) (uint64, error) {
	v, err := src.ReadBits(n)
	if err != nil {
		return 0, wrap(BadContainer, "read inline setup structure", err)
	}
	if err := dst.WriteBits(v, n); err != nil {
		return 0, wrap(IOFailure, "write inline setup structure", err)
	}
	return v, nil
}

func copyFloors(src *bitstream.Reader, dst *bitstream.OggWriter) error {
	countLess1, err := copyBits(src, dst, 6)
	if err != nil {
		return err
	}
	for i := uint64(0); i <= countLess1; i++ {
		floorType, err := copyBits(src, dst, 16)
		if err != nil {
			return err
		}
		switch floorType {
		case 1:
			if err := copyFloor1(src, dst); err != nil {
				return err
			}
		default:
			return wrap(BadContainer, "floor type 0 (legacy) is not supported by this module", nil)
		}
	}
	return nil
}

func copyFloor1(src *bitstream.Reader, dst *bitstream.OggWriter) error {
	partitionsLess1, err := copyBits(src, dst, 5)
	if err != nil {
		return err
	}
	partitions := int(partitionsLess1) + 1
	classes := make([]uint64, partitions)
	maxClass := uint64(0)
	for i := range classes {
		cls, err := copyBits(src, dst, 4)
		if err != nil {
			return err
		}
		classes[i] = cls
		if cls > maxClass {
			maxClass = cls
		}
	}
	classDims := make([]uint64, maxClass+1)
	for c := uint64(0); c <= maxClass; c++ {
		dimLess1, err := copyBits(src, dst, 3)
		if err != nil {
			return err
		}
		classDims[c] = dimLess1 + 1
		subclassBits, err := copyBits(src, dst, 2)
		if err != nil {
			return err
		}
		if subclassBits != 0 {
			if _, err := copyBits(src, dst, 8); err != nil { // masterbook
				return err
			}
		}
		subclasses := uint64(1) << subclassBits
		for s := uint64(0); s < subclasses; s++ {
			if _, err := copyBits(src, dst, 8); err != nil { // subclass book, -1 biased in real Vorbis; bit width unaffected
				return err
			}
		}
	}
	if _, err := copyBits(src, dst, 2); err != nil { // multiplier-1
		return err
	}
	rangeBits, err := copyBits(src, dst, 4)
	if err != nil {
		return err
	}
	total := uint64(2)
	for _, cls := range classes {
		total += classDims[cls]
	}
	for i := uint64(2); i < total; i++ {
		if _, err := copyBits(src, dst, uint(rangeBits)); err != nil {
			return err
		}
	}
	return nil
}

func copyResidues(src *bitstream.Reader, dst *bitstream.OggWriter) error {
	countLess1, err := copyBits(src, dst, 6)
	if err != nil {
		return err
	}
	for i := uint64(0); i <= countLess1; i++ {
		residueType, err := copyBits(src, dst, 16)
		if err != nil {
			return err
		}
		if residueType > 2 {
			return wrap(BadContainer, "unrecognized residue type", nil)
		}
		if _, err := copyBits(src, dst, 24); err != nil { // begin
			return err
		}
		if _, err := copyBits(src, dst, 24); err != nil { // end
			return err
		}
		if _, err := copyBits(src, dst, 24); err != nil { // partition size - 1
			return err
		}
		classificationsLess1, err := copyBits(src, dst, 6)
		if err != nil {
			return err
		}
		if _, err := copyBits(src, dst, 8); err != nil { // classbook
			return err
		}
		classifications := int(classificationsLess1) + 1
		cascades := make([]uint64, classifications)
		for c := range cascades {
			low, err := copyBits(src, dst, 3)
			if err != nil {
				return err
			}
			flag, err := copyBits(src, dst, 1)
			if err != nil {
				return err
			}
			high := uint64(0)
			if flag != 0 {
				high, err = copyBits(src, dst, 5)
				if err != nil {
					return err
				}
			}
			cascades[c] = high<<3 | low
		}
		for _, cascade := range cascades {
			for bit := 0; bit < 8; bit++ {
				if cascade&(1<<uint(bit)) == 0 {
					continue
				}
				if _, err := copyBits(src, dst, 8); err != nil { // residue book for this bit
					return err
				}
			}
		}
	}
	return nil
}

func copyMappings(src *bitstream.Reader, dst *bitstream.OggWriter, channels int) error {
	countLess1, err := copyBits(src, dst, 6)
	if err != nil {
		return err
	}
	angleBits := bitstream.Ilog(uint32(channels - 1))
	for i := uint64(0); i <= countLess1; i++ {
		if _, err := copyBits(src, dst, 16); err != nil { // mapping type, always 0
			return err
		}
		submapFlag, err := copyBits(src, dst, 1)
		if err != nil {
			return err
		}
		submaps := 1
		if submapFlag != 0 {
			n, err := copyBits(src, dst, 4)
			if err != nil {
				return err
			}
			submaps = int(n) + 1
		}
		squarePolar, err := copyBits(src, dst, 1)
		if err != nil {
			return err
		}
		if squarePolar != 0 {
			stepsLess1, err := copyBits(src, dst, 8)
			if err != nil {
				return err
			}
			for s := uint64(0); s <= stepsLess1; s++ {
				if _, err := copyBits(src, dst, uint(angleBits)); err != nil {
					return err
				}
				if _, err := copyBits(src, dst, uint(angleBits)); err != nil {
					return err
				}
			}
		}
		if _, err := copyBits(src, dst, 2); err != nil { // reserved
			return err
		}
		if submaps > 1 {
			for ch := 0; ch < channels; ch++ {
				if _, err := copyBits(src, dst, 4); err != nil { // mapping mux
					return err
				}
			}
		}
		for s := 0; s < submaps; s++ {
			if _, err := copyBits(src, dst, 8); err != nil { // time config placeholder
				return err
			}
			if _, err := copyBits(src, dst, 8); err != nil { // floor number
				return err
			}
			if _, err := copyBits(src, dst, 8); err != nil { // residue number
				return err
			}
		}
	}
	return nil
}

func copyModes(src *bitstream.Reader, dst *bitstream.OggWriter) (*HeaderInfo, error) {
	countLess1, err := copyBits(src, dst, 6)
	if err != nil {
		return nil, err
	}
	modesCount := int(countLess1) + 1
	blockFlags := make([]bool, modesCount)
	for i := 0; i < modesCount; i++ {
		blockFlag, err := copyBits(src, dst, 1)
		if err != nil {
			return nil, err
		}
		blockFlags[i] = blockFlag != 0
		if _, err := copyBits(src, dst, 16); err != nil { // windowtype, always 0
			return nil, err
		}
		if _, err := copyBits(src, dst, 16); err != nil { // transformtype, always 0
			return nil, err
		}
		if _, err := copyBits(src, dst, 8); err != nil { // mapping index
			return nil, err
		}
	}
	return &HeaderInfo{
		ModesCount:     modesCount,
		ModeBlockFlags: blockFlags,
		ModeIndexBits:  bitstream.Ilog(uint32(modesCount - 1)),
	}, nil
}

// writeTemplate emits a fixed, minimal floor/residue/mapping/mode sequence
// for a built-in decoder variant, used when the setup region carries no
// inline structures and codebooks were instead pulled from an external
// library (spec.md §4.6(b)). Both templates describe a single floor1, a
// single residue, one mapping, and two modes (short and long block),
// matching the end-to-end scenario in spec.md §8.2. The "aoTuV" template
// additionally couples stereo channels in the mapping when channels == 2,
// the one structural difference between the two historically bundled
// Wwise codebook libraries this module ships templates for.
func writeTemplate(variant DecoderVariant, dst *bitstream.OggWriter, channels int) (*HeaderInfo, error) {
	w := func(v uint64, n uint) error { return dst.WriteBits(v, n) }

	// One floor1: 1 partition, 1 class, class dimension 1, no masterbook
	// and one subclass book, multiplier 1, range bits 8, and one explicit
	// X-list coordinate beyond the implicit 0/n endpoints.
	if err := w(0, 6); err != nil { // floor count - 1 = 0 -> 1 floor
		return nil, wrap(IOFailure, "write floor count", err)
	}
	if err := w(1, 16); err != nil { // floor type 1
		return nil, wrap(IOFailure, "write floor type", err)
	}
	if err := w(0, 5); err != nil { // partitions - 1 = 0 -> 1 partition
		return nil, wrap(IOFailure, "write floor1 partitions", err)
	}
	if err := w(0, 4); err != nil { // partition 0's class = 0
		return nil, wrap(IOFailure, "write floor1 partition class", err)
	}
	if err := w(0, 3); err != nil { // class 0 dimension - 1 = 0 -> dim 1
		return nil, wrap(IOFailure, "write floor1 class dimension", err)
	}
	if err := w(0, 2); err != nil { // class 0 subclass bits = 0 -> no masterbook
		return nil, wrap(IOFailure, "write floor1 subclass bits", err)
	}
	if err := w(0, 8); err != nil { // the one subclass book, index 0
		return nil, wrap(IOFailure, "write floor1 subclass book", err)
	}
	if err := w(0, 2); err != nil { // multiplier - 1 = 0 -> multiplier 1
		return nil, wrap(IOFailure, "write floor1 multiplier", err)
	}
	if err := w(8, 4); err != nil { // range bits
		return nil, wrap(IOFailure, "write floor1 range bits", err)
	}
	if err := w(0, 8); err != nil { // X-list coordinate for the one dimension
		return nil, wrap(IOFailure, "write floor1 X coordinate", err)
	}

	// One residue, type 2, classbook 0, single classification with no
	// cascade bits set (books drawn entirely from the classbook).
	if err := w(0, 6); err != nil { // residue count - 1 = 0 -> 1 residue
		return nil, wrap(IOFailure, "write residue count", err)
	}
	if err := w(2, 16); err != nil { // residue type 2
		return nil, wrap(IOFailure, "write residue type", err)
	}
	if err := w(0, 24); err != nil { // begin
		return nil, wrap(IOFailure, "write residue begin", err)
	}
	if err := w(uint64(channels), 24); err != nil { // end
		return nil, wrap(IOFailure, "write residue end", err)
	}
	if err := w(0, 24); err != nil { // partition size - 1
		return nil, wrap(IOFailure, "write residue partition size", err)
	}
	if err := w(0, 6); err != nil { // classifications - 1 = 0 -> 1
		return nil, wrap(IOFailure, "write residue classifications", err)
	}
	if err := w(0, 8); err != nil { // classbook
		return nil, wrap(IOFailure, "write residue classbook", err)
	}
	if err := w(0, 3); err != nil { // cascade low bits, class 0
		return nil, wrap(IOFailure, "write residue cascade low", err)
	}
	if err := w(0, 1); err != nil { // cascade high flag, class 0
		return nil, wrap(IOFailure, "write residue cascade flag", err)
	}

	// One mapping. aoTuV couples a stereo pair; standard does not.
	if err := w(0, 6); err != nil { // mapping count - 1 = 0 -> 1 mapping
		return nil, wrap(IOFailure, "write mapping count", err)
	}
	if err := w(0, 16); err != nil { // mapping type 0
		return nil, wrap(IOFailure, "write mapping type", err)
	}
	if err := w(0, 1); err != nil { // submaps flag = 0 -> 1 submap
		return nil, wrap(IOFailure, "write mapping submaps flag", err)
	}
	coupled := variant == VariantExternalAoTuV && channels == 2
	if coupled {
		if err := w(1, 1); err != nil { // square polar mapping present
			return nil, wrap(IOFailure, "write mapping square polar flag", err)
		}
		if err := w(0, 8); err != nil { // coupling steps - 1 = 0 -> 1 step
			return nil, wrap(IOFailure, "write mapping coupling steps", err)
		}
		angleBits := bitstream.Ilog(uint32(channels - 1))
		if err := w(0, uint(angleBits)); err != nil { // magnitude channel 0
			return nil, wrap(IOFailure, "write mapping coupling magnitude", err)
		}
		if err := w(1, uint(angleBits)); err != nil { // angle channel 1
			return nil, wrap(IOFailure, "write mapping coupling angle", err)
		}
	} else {
		if err := w(0, 1); err != nil { // no square polar mapping
			return nil, wrap(IOFailure, "write mapping square polar flag", err)
		}
	}
	if err := w(0, 2); err != nil { // reserved
		return nil, wrap(IOFailure, "write mapping reserved bits", err)
	}
	if err := w(0, 8); err != nil { // submap 0 time config placeholder
		return nil, wrap(IOFailure, "write mapping time config", err)
	}
	if err := w(0, 8); err != nil { // submap 0 floor number
		return nil, wrap(IOFailure, "write mapping floor number", err)
	}
	if err := w(0, 8); err != nil { // submap 0 residue number
		return nil, wrap(IOFailure, "write mapping residue number", err)
	}

	// Two modes: mode 0 is a short block, mode 1 a long block, both
	// mapped to the one mapping above.
	if err := w(1, 6); err != nil { // mode count - 1 = 1 -> 2 modes
		return nil, wrap(IOFailure, "write mode count", err)
	}
	blockFlags := []bool{false, true}
	for _, long := range blockFlags {
		flag := uint64(0)
		if long {
			flag = 1
		}
		if err := w(flag, 1); err != nil {
			return nil, wrap(IOFailure, "write mode blockflag", err)
		}
		if err := w(0, 16); err != nil { // windowtype
			return nil, wrap(IOFailure, "write mode windowtype", err)
		}
		if err := w(0, 16); err != nil { // transformtype
			return nil, wrap(IOFailure, "write mode transformtype", err)
		}
		if err := w(0, 8); err != nil { // mapping index
			return nil, wrap(IOFailure, "write mode mapping index", err)
		}
	}

	return &HeaderInfo{
		ModesCount:     len(blockFlags),
		ModeBlockFlags: blockFlags,
		ModeIndexBits:  bitstream.Ilog(uint32(len(blockFlags) - 1)),
	}, nil
}
