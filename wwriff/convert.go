package wwriff

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/bitstream"
	"github.com/wwiseogg/wwriff/codebook"
	"github.com/wwiseogg/wwriff/oggframer"
)

// Options configures a Convert call.
type Options struct {
	// Library resolves external codebook references. Required unless
	// Variant is VariantInline.
	Library *codebook.Library
	// Variant selects how the setup header's floor/residue/mapping/mode
	// sequence is sourced; see DecoderVariant.
	Variant DecoderVariant
	// Logger receives Debug-level tracing and a single Warn on failure.
	// A nil Logger uses logrus.StandardLogger().
	Logger *logrus.Logger
	// FixedSerial pins the Ogg bitstream serial number instead of
	// randomizing it, for the bit-stream-determinism testable property
	// (spec.md §8).
	FixedSerial    uint32
	UseFixedSerial bool
}

// Convert reads a Wwise-RIFF asset from r and writes a standards-
// conformant Ogg/Vorbis file to w: identification, comment and setup
// headers, followed by audio pages, per spec.md's full pipeline.
func Convert(r io.Reader, w io.Writer, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "wwriff")

	riff, err := Open(r)
	if err != nil {
		entry.WithError(err).Warn("wwriff: failed to open input")
		return err
	}
	riff.WithLogger(entry)

	if opts.Variant != VariantInline && opts.Library == nil {
		err := wrap(BadCodebook, "external decoder variant requires a codebook library", nil)
		entry.WithError(err).Warn("wwriff: missing codebook library")
		return err
	}
	if opts.Library != nil {
		opts.Library.WithLogger(entry)
		if riff.Vorbis.CodebookHash != 0 {
			entry.WithField("codebook_hash", riff.Vorbis.CodebookHash).Debug("wwriff: resolved codebook library")
		}
	}

	framer := oggframer.New(w).WithLogger(entry)
	if opts.UseFixedSerial {
		framer.SerialOverride(opts.FixedSerial)
	}
	oggw := bitstream.NewOggWriter(framer).WithLogger(entry)

	info, err := WriteHeaders(riff, opts.Library, opts.Variant, oggw, entry)
	if err != nil {
		entry.WithError(err).Warn("wwriff: failed to write headers")
		return err
	}

	if err := WritePackets(riff, info, oggw, entry); err != nil {
		entry.WithError(err).Warn("wwriff: failed to write audio packets")
		return err
	}

	return nil
}
