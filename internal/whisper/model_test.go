package whisper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nupi-ai/whisper-runtime/internal/native"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeModelFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func TestLoadFromFileMissing(t *testing.T) {
	lib := &fakeLibrary{ctx: &fakeContext{}}
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.bin"), t.TempDir()} {
		_, err := LoadFromFile(lib, path, WithLogger(testLogger()))
		if !errors.Is(err, ErrModelNotFound) {
			t.Fatalf("path %q: expected ErrModelNotFound, got %v", path, err)
		}
		if !errors.Is(err, ErrModelLoad) {
			t.Fatalf("path %q: expected ErrModelLoad parent, got %v", path, err)
		}
	}
	if lib.ctx.calls.Load() != 0 {
		t.Fatalf("native context should be untouched")
	}
}

func TestLoadFromFileNativeFailure(t *testing.T) {
	path := writeModelFile(t, "corrupt.bin")

	_, err := LoadFromFile(&fakeLibrary{}, path, WithLogger(testLogger()))
	if !errors.Is(err, ErrModelLoadFailed) {
		t.Fatalf("expected ErrModelLoadFailed for nil context, got %v", err)
	}

	cause := errors.New("bad magic")
	_, err = LoadFromFile(&fakeLibrary{err: cause}, path, WithLogger(testLogger()))
	if !errors.Is(err, ErrModelLoadFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped native error, got %v", err)
	}
}

func TestLoadFromBufferEmpty(t *testing.T) {
	lib := &fakeLibrary{ctx: &fakeContext{}}
	for _, buf := range [][]byte{nil, {}} {
		if _, err := LoadFromBuffer(lib, buf); !errors.Is(err, ErrEmptyBuffer) {
			t.Fatalf("expected ErrEmptyBuffer, got %v", err)
		}
	}
}

func TestLoadFromBufferDoesNotRetainBuffer(t *testing.T) {
	buf := []byte("ggml-model")
	model, err := LoadFromBuffer(native.NewStub(), buf, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("LoadFromBuffer: %v", err)
	}
	defer model.Close()
	for i := range buf {
		buf[i] = 0
	}
	if _, err := model.Infer(context.Background(), make([]float32, 16000), DefaultParams(Greedy)); err != nil {
		t.Fatalf("Infer after source buffer reuse: %v", err)
	}
}

func TestCloseIsOneShot(t *testing.T) {
	fake := &fakeContext{segments: threeSegments()}
	recorder := telemetry.NewRecorder(testLogger())
	model, err := LoadFromBuffer(&fakeLibrary{ctx: fake}, []byte{1}, WithLogger(testLogger()), WithRecorder(recorder))
	if err != nil {
		t.Fatalf("LoadFromBuffer: %v", err)
	}
	if got := recorder.Snapshot().TotalModelLoads; got != 1 {
		t.Fatalf("expected model load recorded, got %d", got)
	}

	if err := model.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := model.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second Close, got %v", err)
	}
	if fake.freed.Load() != 1 {
		t.Fatalf("expected exactly one Free, got %d", fake.freed.Load())
	}

	if _, err := model.Infer(context.Background(), make([]float32, 10), DefaultParams(Greedy)); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded after Close, got %v", err)
	}
	if _, err := model.IsMultilingual(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from IsMultilingual, got %v", err)
	}
	if _, err := model.Languages(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Languages, got %v", err)
	}
	res, err := model.InferAsync(context.Background(), make([]float32, 10), DefaultParams(Greedy)).Wait(context.Background())
	if res != nil || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from InferAsync, got %v, %v", res, err)
	}
	if fake.calls.Load() != 0 {
		t.Fatalf("native call made after Close")
	}
}

func TestCloseWaitsForInference(t *testing.T) {
	fake := &fakeContext{
		segments: threeSegments(),
		gate:     make(chan struct{}),
		started:  make(chan struct{}),
	}
	model, err := LoadFromBuffer(&fakeLibrary{ctx: fake}, []byte{1}, WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}

	future := model.InferAsync(context.Background(), make([]float32, 10), DefaultParams(Greedy))
	<-fake.started

	closed := make(chan error, 1)
	go func() { closed <- model.Close() }()

	select {
	case <-closed:
		t.Fatalf("Close returned while inference was running")
	default:
	}
	close(fake.gate)

	if _, err := future.Wait(context.Background()); err != nil {
		t.Fatalf("in-flight inference failed: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fake.freed.Load() != 1 {
		t.Fatalf("expected Free after inference, got %d", fake.freed.Load())
	}
}

func TestModelMetadata(t *testing.T) {
	path := writeModelFile(t, "ggml-tiny.bin")
	model, err := LoadFromFile(native.NewStub(), path, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	defer model.Close()

	multilingual, err := model.IsMultilingual()
	if err != nil || !multilingual {
		t.Fatalf("expected multilingual model, got %v, %v", multilingual, err)
	}
	langs, err := model.Languages()
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if len(langs) == 0 || langs[0] != "en" {
		t.Fatalf("unexpected languages %v", langs)
	}
	if model.Source() != path {
		t.Fatalf("unexpected source %q", model.Source())
	}

	english, err := LoadFromFile(native.NewStub(), writeModelFile(t, "ggml-tiny.en.bin"), WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer english.Close()
	if ok, _ := english.IsMultilingual(); ok {
		t.Fatalf("expected english-only model")
	}
}
