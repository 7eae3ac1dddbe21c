// Command wwriff2ogg reconstructs a standards-conformant Ogg/Vorbis file
// from a Wwise-RIFF (.wem) asset.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wwiseogg/wwriff/codebook"
	"github.com/wwiseogg/wwriff/config"
	"github.com/wwiseogg/wwriff/wwriff"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "", "YAML manifest mapping codebook_hash to a library and variant")
		libPath      = flag.String("lib", "", "external codebook library file (overrides -manifest lookup)")
		variantFlag  = flag.String("variant", "", "decoder variant: inline, external, aotuv (overrides -manifest lookup)")
		fixedSerial  = flag.Uint("serial", 0, "fixed Ogg bitstream serial number (0 picks a random serial)")
		verbose      = flag.Bool("v", false, "enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] input.wem output.ogg\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	inPath, outPath := flag.Arg(0), flag.Arg(1)

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(inPath, outPath, *manifestPath, *libPath, *variantFlag, uint32(*fixedSerial), log); err != nil {
		fmt.Fprintf(os.Stderr, "wwriff2ogg: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outPath, manifestPath, libPath, variantFlag string, fixedSerial uint32, log *logrus.Logger) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	opts := wwriff.Options{
		Logger: log,
	}
	if fixedSerial != 0 {
		opts.FixedSerial = fixedSerial
		opts.UseFixedSerial = true
	}

	if libPath != "" || variantFlag != "" {
		variant, err := wwriff.ParseDecoderVariant(variantFlag)
		if err != nil {
			return err
		}
		opts.Variant = variant
		if libPath != "" {
			lib, err := codebook.Open(libPath)
			if err != nil {
				return fmt.Errorf("open codebook library: %w", err)
			}
			opts.Library = lib
		}
	} else if manifestPath != "" {
		riff, err := wwriff.Open(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind input: %w", err)
		}

		manifest, err := config.Load(manifestPath)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		entry, err := manifest.Resolve(fmt.Sprintf("%08x", riff.Vorbis.CodebookHash))
		if err != nil {
			return fmt.Errorf("resolve codebook_hash: %w", err)
		}
		variant, err := wwriff.ParseDecoderVariant(entry.Variant)
		if err != nil {
			return fmt.Errorf("manifest entry for %s: %w", entry.Hash, err)
		}
		opts.Variant = variant
		if entry.Library != "" {
			lib, err := codebook.Open(entry.Library)
			if err != nil {
				return fmt.Errorf("open codebook library %s: %w", entry.Library, err)
			}
			opts.Library = lib
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if err := wwriff.Convert(in, out, opts); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("convert: %w", err)
	}
	return out.Close()
}
