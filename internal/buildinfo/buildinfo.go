package buildinfo

import (
	"runtime/debug"
	"sync"
)

// Metadata captures static identifiers for the runtime.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// DefaultVersion is reported when the binary carries no module version.
const DefaultVersion = "0.1.0-dev"

// Info describes the current build. Version is overwritten at link time with
// -ldflags "-X github.com/nupi-ai/whisper-runtime/internal/buildinfo.version=...".
var Info = Metadata{
	Name:        "Whisper Runtime",
	BinaryName:  "whisperd",
	Slug:        "whisper-runtime",
	Description: "Local speech-to-text runtime backed by whisper.cpp.",
	GeneratorID: "whisper-runtime",
	Version:     Version(),
}

var version string

var moduleVersion = sync.OnceValue(func() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return DefaultVersion
})

// Version returns the link-time version, then the module version, then DefaultVersion.
func Version() string {
	if version != "" {
		return version
	}
	return moduleVersion()
}

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelVariant, language, backend string) map[string]string {
	return map[string]string{
		"generator":     Info.GeneratorID,
		"version":       Info.Version,
		"model_variant": modelVariant,
		"language":      language,
		"backend":       backend,
	}
}
