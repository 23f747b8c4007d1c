package native

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStubInitFromFile(t *testing.T) {
	stub := NewStub()
	if _, err := stub.InitFromFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := stub.InitFromFile(filepath.Join(t.TempDir(), "missing.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := stub.InitFromFile(empty); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}

	english := filepath.Join(dir, "ggml-base.en.bin")
	if err := os.WriteFile(english, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, err := stub.InitFromFile(english)
	if err != nil {
		t.Fatalf("InitFromFile: %v", err)
	}
	defer ctx.Free()
	if ctx.IsMultilingual() {
		t.Fatalf("expected english-only model")
	}
}

func TestStubFullSegmentsAndCallbacks(t *testing.T) {
	stub := &Stub{SegmentSamples: 16000}
	ctx, err := stub.InitFromBuffer([]byte("ggml"))
	if err != nil {
		t.Fatalf("InitFromBuffer: %v", err)
	}
	defer ctx.Free()

	var seen []int
	rc := ctx.Full(Params{Language: "auto"}, make([]float32, 40000), func(n int) {
		seen = append(seen, ctx.NSegments())
	})
	if rc != 0 {
		t.Fatalf("expected rc 0, got %d", rc)
	}
	if got := ctx.NSegments(); got != 3 {
		t.Fatalf("expected 3 segments, got %d", got)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected callback progression %v", seen)
	}
	if t0, t1 := ctx.SegmentT0(2), ctx.SegmentT1(2); t0 != 200 || t1 != 250 {
		t.Fatalf("unexpected last segment span %d-%d", t0, t1)
	}
	last := ctx.NTokens(0) - 1
	if ctx.TokenData(0, last).ID < ctx.TokenEOT() {
		t.Fatalf("expected trailing token to be special")
	}
	if ctx.LangStr(ctx.FullLangID()) != "en" {
		t.Fatalf("expected auto to resolve to en, got %q", ctx.LangStr(ctx.FullLangID()))
	}
}

func TestStubFullRejectsUnknownLanguage(t *testing.T) {
	ctx, err := NewStub().InitFromBuffer([]byte{1})
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free()
	if rc := ctx.Full(Params{Language: "xx"}, make([]float32, 10), nil); rc == 0 {
		t.Fatalf("expected non-zero rc for unknown language")
	}
	if ctx.NSegments() != 0 {
		t.Fatalf("expected no segments after failure")
	}
}
