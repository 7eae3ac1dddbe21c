// Package config loads the YAML manifest that maps a Wwise codebook_hash
// onto a bundled codebook library and decoder variant, resolving which
// library and setup-header strategy wwriff.Convert should use for a given
// input (spec.md's Open Question (a), and the "library is chosen by
// matching the RIFF's codebook_hash to a bundled library" rule in
// spec.md §6).
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// Entry describes one codebook_hash's resolution.
type Entry struct {
	Hash    string `yaml:"hash"`
	Library string `yaml:"library"`
	Variant string `yaml:"variant"`
}

// Manifest is an ordered list of Entry, loaded from YAML.
type Manifest struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open manifest %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and parses a manifest from an already-open reader.
func Parse(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest: %w", err)
	}
	return &m, nil
}

// ErrHashNotFound is returned by Resolve when no entry matches the
// requested hash.
var ErrHashNotFound = fmt.Errorf("config: codebook_hash not found in manifest")

// Resolve looks up the entry for a codebook_hash formatted as lowercase
// hex, e.g. fmt.Sprintf("%08x", riff.Vorbis.CodebookHash).
func (m *Manifest) Resolve(hash string) (Entry, error) {
	for _, e := range m.Entries {
		if e.Hash == hash {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrHashNotFound, hash)
}
