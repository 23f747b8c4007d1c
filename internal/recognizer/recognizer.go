// Package recognizer manages the lifecycle of one whisper model for a process:
// background loading, a shared parameter snapshot and a single dispatcher for
// segment events.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/brunoga/deep"
	"github.com/google/uuid"

	"github.com/nupi-ai/whisper-runtime/internal/audio"
	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/models"
	"github.com/nupi-ai/whisper-runtime/internal/native"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

type loadState int

const (
	stateIdle loadState = iota
	stateLoading
	stateLoaded
	stateFailed
	stateClosed
)

// Settings is the caller-adjustable part of every transcription.
type Settings struct {
	Params whisper.Params
	// Metadata is attached to the telemetry of every inference.
	Metadata map[string]string
}

// Options wires a Recognizer.
type Options struct {
	Config   config.Config
	Library  native.Library
	Manager  *models.Manager
	Recorder *telemetry.Recorder
	Logger   *slog.Logger
	// LoadOptions are appended to the model options the recognizer sets itself.
	LoadOptions []whisper.LoadOption
}

// Recognizer owns at most one loaded model.
type Recognizer struct {
	log      *slog.Logger
	cfg      config.Config
	lib      native.Library
	manager  *models.Manager
	recorder *telemetry.Recorder
	pre      audio.Preprocessor
	loadOpts []whisper.LoadOption

	mu        sync.Mutex
	state     loadState
	loadDone  chan struct{}
	loadErr   error
	model     *whisper.Model
	modelPath string
	unsub     func()

	settingsMu sync.RWMutex
	settings   Settings

	dispatch *dispatcher
}

// New builds a Recognizer. The model is not loaded until Init.
func New(opts Options) (*Recognizer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lib := opts.Library
	if lib == nil {
		var err error
		lib, err = NewLibrary(opts.Config, logger)
		if err != nil && !errors.Is(err, native.ErrUnavailable) {
			return nil, err
		}
	}
	params, err := opts.Config.DecodeParams()
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}

	r := &Recognizer{
		log: logger.With(
			"component", "recognizer",
			"backend", lib.Name(),
			"model_variant", opts.Config.ModelVariant,
		),
		cfg:      opts.Config,
		lib:      lib,
		manager:  opts.Manager,
		recorder: opts.Recorder,
		pre:      audio.Preprocessor{Quality: opts.Config.Quality(), Logger: logger},
		loadOpts: opts.LoadOptions,
		settings: Settings{Params: params},
	}
	r.dispatch = newDispatcher(r.log)
	return r, nil
}

// Backend names the native library in use.
func (r *Recognizer) Backend() string { return r.lib.Name() }

// Init loads the model and blocks until loading finishes or ctx ends. Loading
// continues in the background when ctx ends first. A call while a load is in
// progress returns ErrAlreadyLoading and a call after a successful load returns
// ErrAlreadyLoaded; both are no-ops. A failed load may be retried.
func (r *Recognizer) Init(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case stateLoaded:
		r.mu.Unlock()
		r.log.Warn("model already loaded; ignoring init")
		return whisper.ErrAlreadyLoaded
	case stateLoading:
		r.mu.Unlock()
		r.log.Warn("model is still loading; ignoring init")
		return whisper.ErrAlreadyLoading
	case stateClosed:
		r.mu.Unlock()
		return whisper.ErrClosed
	}
	r.state = stateLoading
	r.loadErr = nil
	done := make(chan struct{})
	r.loadDone = done
	r.mu.Unlock()

	go r.load(done)

	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recognizer) load(done chan struct{}) {
	defer close(done)

	model, path, err := r.openModel(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateClosed {
		if model != nil {
			_ = model.Close()
		}
		r.loadErr = whisper.ErrClosed
		return
	}
	if err != nil {
		r.state = stateFailed
		r.loadErr = err
		r.log.Error("model load failed", "error", err)
		return
	}
	r.state = stateLoaded
	r.model = model
	r.modelPath = path
	r.unsub = model.Subscribe(r.dispatch.segment)
}

func (r *Recognizer) openModel(ctx context.Context) (*whisper.Model, string, error) {
	opts := append([]whisper.LoadOption{
		whisper.WithLogger(r.log),
		whisper.WithRecorder(r.recorder),
		whisper.WithRelayBuffer(r.cfg.RelayBuffer),
	}, r.loadOpts...)

	path, err := r.resolvePath(ctx)
	if err != nil {
		if _, stub := r.lib.(*native.Stub); stub {
			r.log.Warn("no model file; stub backend runs without one", "error", err)
			model, loadErr := whisper.LoadFromBuffer(r.lib, []byte("stub:"+r.cfg.ModelVariant), opts...)
			return model, "", loadErr
		}
		return nil, "", fmt.Errorf("%w: %w", whisper.ErrModelNotFound, err)
	}

	if models.IsCompressed(path) {
		buf, err := models.ReadModel(path)
		if err != nil {
			return nil, path, fmt.Errorf("%w: %w", whisper.ErrModelLoadFailed, err)
		}
		model, err := whisper.LoadFromBuffer(r.lib, buf, opts...)
		return model, path, err
	}
	model, err := whisper.LoadFromFile(r.lib, path, opts...)
	return model, path, err
}

func (r *Recognizer) resolvePath(ctx context.Context) (string, error) {
	override := strings.TrimSpace(r.cfg.ModelPath)
	if r.manager == nil {
		if override == "" {
			return "", errors.New("recognizer: no model path and no model manager")
		}
		if _, err := os.Stat(override); err != nil {
			return "", err
		}
		return override, nil
	}
	if _, stub := r.lib.(*native.Stub); stub {
		path, err := r.manager.Resolve(r.cfg.ModelVariant, override)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	manifest, err := models.DefaultManifest()
	if err != nil {
		return "", err
	}
	return r.manager.EnsureVariant(ctx, r.cfg.ModelVariant, models.EnsureOptions{
		Manifest: manifest,
		Override: override,
	})
}

// IsLoaded reports whether a model is ready for inference.
func (r *Recognizer) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateLoaded
}

// IsLoading reports whether a load is in progress.
func (r *Recognizer) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateLoading
}

// ModelPath is the file the model was loaded from, empty for buffer-only stub loads.
func (r *Recognizer) ModelPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelPath
}

// IsMultilingual reports whether the loaded model supports languages beyond English.
func (r *Recognizer) IsMultilingual() (bool, error) {
	model, err := r.loadedModel()
	if err != nil {
		return false, err
	}
	return model.IsMultilingual()
}

// Languages lists the language codes of the loaded model.
func (r *Recognizer) Languages() ([]string, error) {
	model, err := r.loadedModel()
	if err != nil {
		return nil, err
	}
	return model.Languages()
}

func (r *Recognizer) loadedModel() (*whisper.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case stateLoaded:
		return r.model, nil
	case stateClosed:
		return nil, whisper.ErrClosed
	case stateFailed:
		return nil, fmt.Errorf("%w: %w", whisper.ErrNotLoaded, r.loadErr)
	default:
		return nil, whisper.ErrNotLoaded
	}
}

// waitLoaded blocks while a load is in progress.
func (r *Recognizer) waitLoaded(ctx context.Context) (*whisper.Model, error) {
	r.mu.Lock()
	loading := r.state == stateLoading
	done := r.loadDone
	r.mu.Unlock()

	if loading {
		r.log.Debug("waiting for model load")
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.loadedModel()
}

// Settings returns a copy of the current settings.
func (r *Recognizer) Settings() Settings {
	r.settingsMu.RLock()
	defer r.settingsMu.RUnlock()
	return deep.MustCopy(r.settings)
}

// SetSettings replaces the settings used by later transcriptions.
func (r *Recognizer) SetSettings(s Settings) error {
	if err := s.Params.Validate(); err != nil {
		return err
	}
	s = deep.MustCopy(s)
	r.settingsMu.Lock()
	r.settings = s
	r.settingsMu.Unlock()
	return nil
}

// Params returns the current inference parameters.
func (r *Recognizer) Params() whisper.Params {
	return r.Settings().Params
}

// SetParams replaces the inference parameters, keeping the metadata.
func (r *Recognizer) SetParams(p whisper.Params) error {
	s := r.Settings()
	s.Params = p
	return r.SetSettings(s)
}

// Subscribe registers fn for segments of every transcription. All subscribers
// run on one dispatcher goroutine, in segment order. A subscriber must not
// wait on a Transcribe future or call Close on this Recognizer: both wait for
// the dispatcher the subscriber is running on.
func (r *Recognizer) Subscribe(fn func(whisper.Segment)) (unsubscribe func()) {
	return r.dispatch.subscribe(fn)
}

// TranscribeOption customises one Transcribe call.
type TranscribeOption func(*transcribeConfig)

type transcribeConfig struct {
	mutate    []func(*whisper.Params)
	onSegment func(whisper.Segment)
	requestID string
	metadata  map[string]string
}

// WithParams adjusts the settings snapshot for this call only.
func WithParams(fn func(*whisper.Params)) TranscribeOption {
	return func(c *transcribeConfig) {
		if fn != nil {
			c.mutate = append(c.mutate, fn)
		}
	}
}

// WithSegmentHandler streams this call's segments to fn. fn runs under the
// model lock and must not wait on another Transcribe or call Close.
func WithSegmentHandler(fn func(whisper.Segment)) TranscribeOption {
	return func(c *transcribeConfig) { c.onSegment = fn }
}

// WithRequestID overrides the generated request id.
func WithRequestID(id string) TranscribeOption {
	return func(c *transcribeConfig) { c.requestID = id }
}

// WithMetadata merges attributes into the call's telemetry metadata.
func WithMetadata(md map[string]string) TranscribeOption {
	return func(c *transcribeConfig) { c.metadata = md }
}

// Transcribe preprocesses interleaved samples at sampleRate and transcribes them
// in the background. It waits for an in-progress load and fails with
// ErrNotLoaded when no model was ever loaded. Segment subscribers have been
// called for every streamed segment by the time the Future resolves.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32, sampleRate, channels int, opts ...TranscribeOption) *whisper.Future {
	if ctx == nil {
		ctx = context.Background()
	}
	var cfg transcribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.requestID == "" {
		cfg.requestID = uuid.NewString()
	}
	settings := r.Settings()
	for _, fn := range cfg.mutate {
		fn(&settings.Params)
	}
	metadata := settings.Metadata
	if len(cfg.metadata) > 0 {
		if metadata == nil {
			metadata = make(map[string]string, len(cfg.metadata))
		}
		for k, v := range cfg.metadata {
			metadata[k] = v
		}
	}
	// Transcribe returns before the work starts; the caller may reuse samples.
	buf := make([]float32, len(samples))
	copy(buf, samples)

	return whisper.Async(func() (*whisper.Result, error) {
		model, err := r.waitLoaded(ctx)
		if err != nil {
			return nil, err
		}
		mono, err := r.pre.Process(buf, sampleRate, channels)
		if err != nil {
			return nil, err
		}
		inferOpts := []whisper.InferOption{
			whisper.WithRequestID(cfg.requestID),
			whisper.WithMetadata(metadata),
		}
		if cfg.onSegment != nil {
			inferOpts = append(inferOpts, whisper.WithSegmentHandler(cfg.onSegment))
		}
		res, err := model.Infer(ctx, mono, settings.Params, inferOpts...)
		r.dispatch.flush()
		return res, err
	})
}

// Close releases the model and stops the dispatcher. It is safe to call more than once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.state == stateClosed {
		r.mu.Unlock()
		return nil
	}
	r.state = stateClosed
	model := r.model
	unsub := r.unsub
	r.model = nil
	r.unsub = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	var err error
	if model != nil {
		err = model.Close()
	}
	r.dispatch.close()
	return err
}
