package recognizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/models"
	"github.com/nupi-ai/whisper-runtime/internal/native"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatedLibrary holds InitFromFile until gate is closed.
type gatedLibrary struct {
	native.Library
	gate    chan struct{}
	entered chan struct{}
}

func (l *gatedLibrary) InitFromFile(path string) (native.Context, error) {
	close(l.entered)
	<-l.gate
	return l.Library.InitFromFile(path)
}

func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-base.bin")
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRecognizer(t *testing.T, lib native.Library, cfg config.Config) *Recognizer {
	t.Helper()
	if cfg.ModelVariant == "" {
		cfg.ModelVariant = "base"
	}
	r, err := New(Options{Config: cfg, Library: lib, Logger: testLogger(), Recorder: telemetry.NewRecorder(testLogger())})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestTranscribeBeforeInit(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t)})
	_, err := r.Transcribe(context.Background(), make([]float32, 16000), 16000, 1).Wait(context.Background())
	if !errors.Is(err, whisper.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	if _, err := r.IsMultilingual(); !errors.Is(err, whisper.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded from IsMultilingual, got %v", err)
	}
}

func TestInitReportsAlreadyLoaded(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t)})
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !r.IsLoaded() || r.IsLoading() {
		t.Fatalf("unexpected state loaded=%v loading=%v", r.IsLoaded(), r.IsLoading())
	}
	if err := r.Init(context.Background()); !errors.Is(err, whisper.ErrAlreadyLoaded) {
		t.Fatalf("expected ErrAlreadyLoaded, got %v", err)
	}
	multilingual, err := r.IsMultilingual()
	if err != nil || !multilingual {
		t.Fatalf("expected multilingual model, got %v, %v", multilingual, err)
	}
}

func TestTranscribeWaitsWhileLoading(t *testing.T) {
	lib := &gatedLibrary{Library: native.NewStub(), gate: make(chan struct{}), entered: make(chan struct{})}
	r := newRecognizer(t, lib, config.Config{ModelPath: modelFile(t)})

	initErr := make(chan error, 1)
	go func() { initErr <- r.Init(context.Background()) }()
	<-lib.entered

	if !r.IsLoading() {
		t.Fatalf("expected loading state")
	}
	if err := r.Init(context.Background()); !errors.Is(err, whisper.ErrAlreadyLoading) {
		t.Fatalf("expected ErrAlreadyLoading, got %v", err)
	}

	future := r.Transcribe(context.Background(), make([]float32, 48000), 48000, 1)
	time.Sleep(5 * time.Millisecond)
	if future.Ready() {
		t.Fatalf("transcription finished before the model loaded")
	}

	close(lib.gate)
	if err := <-initErr; err != nil {
		t.Fatalf("Init: %v", err)
	}
	res, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected one segment for one second of audio, got %d", len(res.Segments))
	}
}

func TestInitContextDetachesFromLoad(t *testing.T) {
	lib := &gatedLibrary{Library: native.NewStub(), gate: make(chan struct{}), entered: make(chan struct{})}
	r := newRecognizer(t, lib, config.Config{ModelPath: modelFile(t)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Init(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	<-lib.entered
	close(lib.gate)

	deadline := time.Now().Add(time.Second)
	for !r.IsLoaded() {
		if time.Now().After(deadline) {
			t.Fatalf("background load never finished")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInitFailureCanRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ggml-base.bin")
	r := newRecognizer(t, &gatedLibrary{Library: native.NewStub(), gate: closedChan(), entered: make(chan struct{})}, config.Config{ModelPath: path})

	if err := r.Init(context.Background()); !errors.Is(err, whisper.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if r.IsLoaded() {
		t.Fatalf("recognizer reports loaded after failure")
	}
	if _, err := r.IsMultilingual(); !errors.Is(err, whisper.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}

	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("retry Init: %v", err)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestSubscribersSeeSegmentsBeforeResult(t *testing.T) {
	r := newRecognizer(t, &native.Stub{SegmentSamples: 8000}, config.Config{ModelPath: modelFile(t)})
	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		indices []int
	)
	unsubscribe := r.Subscribe(func(seg whisper.Segment) {
		mu.Lock()
		indices = append(indices, seg.Index)
		mu.Unlock()
	})
	defer unsubscribe()

	handled := 0
	res, err := r.Transcribe(context.Background(), make([]float32, 32000), 16000, 1,
		WithSegmentHandler(func(whisper.Segment) { handled++ })).Wait(context.Background())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(indices) != len(res.Segments) || len(indices) != 4 {
		t.Fatalf("expected 4 dispatched segments, got %v (result has %d)", indices, len(res.Segments))
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("segments out of order: %v", indices)
		}
	}
	if handled != 4 {
		t.Fatalf("expected per-call handler to see 4 segments, got %d", handled)
	}
}

func TestSettingsSnapshot(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t), Language: "pl"})

	s := r.Settings()
	if s.Params.Language != "pl" {
		t.Fatalf("expected configured language, got %q", s.Params.Language)
	}
	s.Metadata = map[string]string{"source": "mic"}
	s.Params.Translate = true
	if err := r.SetSettings(s); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	s.Metadata["source"] = "mutated"

	got := r.Settings()
	if got.Metadata["source"] != "mic" || !got.Params.Translate {
		t.Fatalf("settings not snapshotted: %+v", got)
	}
	got.Metadata["source"] = "again"
	if r.Settings().Metadata["source"] != "mic" {
		t.Fatalf("Settings returned shared state")
	}

	bad := r.Params()
	bad.AudioCtx = -1
	if err := r.SetParams(bad); !errors.Is(err, whisper.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestTranscribeParamOverrides(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t)})
	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := r.Transcribe(context.Background(), make([]float32, 16000), 16000, 1,
		WithParams(func(p *whisper.Params) { p.Language = "de"; p.EnableTokens = true })).Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Language != "de" || res.Segments[0].Tokens == nil {
		t.Fatalf("override not applied: %+v", res)
	}
	if r.Params().Language != "en" {
		t.Fatalf("per-call override leaked into settings")
	}
}

func TestSilenceThroughRecognizer(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t), ResampleQuality: "high"})
	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := r.Transcribe(context.Background(), make([]float32, 44100*5*2), 44100, 2).Wait(context.Background())
	if err != nil {
		t.Fatalf("Transcribe on silence: %v", err)
	}
	if res == nil {
		t.Fatalf("expected result")
	}
}

func TestCloseRejectsLaterCalls(t *testing.T) {
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: modelFile(t)})
	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), make([]float32, 10), 16000, 1).Wait(context.Background()); !errors.Is(err, whisper.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := r.Init(context.Background()); !errors.Is(err, whisper.ErrClosed) {
		t.Fatalf("expected ErrClosed from Init, got %v", err)
	}
}

func TestStubLoadsWithoutModelFile(t *testing.T) {
	manager, err := models.NewManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(Options{
		Config:  config.Config{ModelVariant: "base", UseStubEngine: true},
		Manager: manager,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()
	if r.Backend() != "stub" {
		t.Fatalf("expected stub backend, got %q", r.Backend())
	}
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.ModelPath() != "" {
		t.Fatalf("expected no model path, got %q", r.ModelPath())
	}
}

func TestLoadsCompressedModel(t *testing.T) {
	raw := modelFile(t)
	compressed := raw + ".zst"
	if err := models.CompressModel(raw, compressed); err != nil {
		t.Fatal(err)
	}
	r := newRecognizer(t, native.NewStub(), config.Config{ModelPath: compressed})
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.ModelPath() != compressed {
		t.Fatalf("unexpected model path %q", r.ModelPath())
	}
}
