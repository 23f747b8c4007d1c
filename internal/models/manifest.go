// Package models resolves, downloads and reads whisper.cpp GGML model files.
package models

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed embedded_manifest.yaml
var embeddedManifest []byte

// ErrUnknownVariant reports a variant missing from the manifest.
var ErrUnknownVariant = errors.New("models: unknown variant")

// Variant describes one downloadable model file.
type Variant struct {
	DisplayName  string `yaml:"display_name"`
	Filename     string `yaml:"filename"`
	URL          string `yaml:"url"`
	SHA256       string `yaml:"sha256,omitempty"`
	SizeBytes    int64  `yaml:"size_bytes,omitempty"`
	Multilingual bool   `yaml:"multilingual,omitempty"`
}

// Manifest maps variant names to files.
type Manifest struct {
	Variants map[string]Variant `yaml:"variants"`
}

// DefaultManifest returns the manifest compiled into the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}

// LoadManifest decodes a YAML manifest.
func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("models: decode manifest: %w", err)
	}
	for name, v := range m.Variants {
		if v.Filename == "" {
			return Manifest{}, fmt.Errorf("models: variant %q has no filename", name)
		}
	}
	return m, nil
}

// Encode writes the manifest as YAML.
func (m Manifest) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

// Lookup returns the named variant.
func (m Manifest) Lookup(name string) (Variant, error) {
	v, ok := m.Variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Names lists variants in lexical order.
func (m Manifest) Names() []string {
	return slices.Sorted(maps.Keys(m.Variants))
}
