package buildinfo

import "testing"

func TestMetadata(t *testing.T) {
	if Version() == "" {
		t.Fatal("Version() returned empty string")
	}
	if Version() != Info.Version {
		t.Fatalf("Version() mismatch: got %q want %q", Version(), Info.Version)
	}

	expect := Metadata{
		Name:        "Whisper Runtime",
		BinaryName:  "whisperd",
		Slug:        "whisper-runtime",
		Description: "Local speech-to-text runtime backed by whisper.cpp.",
		GeneratorID: "whisper-runtime",
		Version:     Version(),
	}
	if Info != expect {
		t.Fatalf("unexpected Info metadata: %+v", Info)
	}
}

func TestTranscriptMetadata(t *testing.T) {
	md := TranscriptMetadata("base", "pl", "stub")
	if md["generator"] != Info.GeneratorID || md["model_variant"] != "base" || md["language"] != "pl" || md["backend"] != "stub" {
		t.Fatalf("unexpected metadata %v", md)
	}
}
