// Package whisper owns loaded whisper.cpp models and runs inference on them.
//
// A Model wraps exactly one native context. Inference on a Model is serialised by
// a per-model mutex; segments decoded during a call are relayed to subscribers
// before the call returns.
package whisper

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/native"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
)

const defaultRelayBuffer = 16

// Model is a loaded whisper.cpp context.
type Model struct {
	log      *slog.Logger
	recorder *telemetry.Recorder
	exec     executor
	source   string

	// mu serialises every native call on nctx, including Free.
	mu     sync.Mutex
	nctx   native.Context
	closed atomic.Bool

	multilingual bool
	languages    []string

	subMu       sync.RWMutex
	subs        map[uint64]func(Segment)
	nextSub     uint64
	relayBuffer int
}

// LoadOption customises model construction.
type LoadOption func(*Model)

// WithLogger sets the model logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) LoadOption {
	return func(m *Model) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithRecorder attaches inference telemetry.
func WithRecorder(recorder *telemetry.Recorder) LoadOption {
	return func(m *Model) { m.recorder = recorder }
}

// WithRelayBuffer sets the capacity of the per-call segment channel.
func WithRelayBuffer(n int) LoadOption {
	return func(m *Model) {
		if n > 0 {
			m.relayBuffer = n
		}
	}
}

// WithInlineExecution makes InferAsync run on the calling goroutine.
func WithInlineExecution() LoadOption {
	return func(m *Model) { m.exec = inlineExecutor{} }
}

func newModel(source string, opts []LoadOption) *Model {
	m := &Model{
		log:         slog.Default(),
		exec:        defaultExecutor(),
		source:      source,
		subs:        make(map[uint64]func(Segment)),
		relayBuffer: defaultRelayBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadFromFile loads the model stored at path.
func LoadFromFile(lib native.Library, path string, opts ...LoadOption) (*Model, error) {
	m := newModel(path, opts)
	start := time.Now()
	err := m.attach(lib, func() (native.Context, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: empty path", ErrModelNotFound)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrModelNotFound, path)
		}
		nctx, err := lib.InitFromFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nctx, err
	})
	m.recorder.RecordModelLoad(path, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFromBuffer loads a model from memory. buf is not retained; the native side
// copies what it needs before returning.
func LoadFromBuffer(lib native.Library, buf []byte, opts ...LoadOption) (*Model, error) {
	source := fmt.Sprintf("buffer:%d", len(buf))
	m := newModel(source, opts)
	start := time.Now()
	err := m.attach(lib, func() (native.Context, error) {
		if len(buf) == 0 {
			return nil, ErrEmptyBuffer
		}
		return lib.InitFromBuffer(buf)
	})
	m.recorder.RecordModelLoad(source, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) attach(lib native.Library, init func() (native.Context, error)) error {
	if lib == nil {
		return fmt.Errorf("%w: no native library", ErrModelLoadFailed)
	}
	nctx, err := init()
	if err != nil {
		if errors.Is(err, ErrModelLoad) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrModelLoadFailed, err)
	}
	if nctx == nil {
		return ErrModelLoadFailed
	}

	m.nctx = nctx
	m.multilingual = nctx.IsMultilingual()
	maxID := nctx.LangMaxID()
	m.languages = make([]string, 0, maxID+1)
	for id := 0; id <= maxID; id++ {
		if lang := nctx.LangStr(id); lang != "" {
			m.languages = append(m.languages, lang)
		}
	}
	m.log = m.log.With(
		"component", "whisper.model",
		"backend", lib.Name(),
		"source", m.source,
	)
	m.log.Info("model loaded", "multilingual", m.multilingual, "languages", len(m.languages))
	return nil
}

// Source describes where the model was loaded from.
func (m *Model) Source() string { return m.source }

// IsMultilingual reports whether the model supports languages other than English.
func (m *Model) IsMultilingual() (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	return m.multilingual, nil
}

// Languages lists the language codes known to the native library.
func (m *Model) Languages() ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]string, len(m.languages))
	copy(out, m.languages)
	return out, nil
}

// Subscribe registers fn for every segment decoded by this model. Calls for one
// inference are delivered in index order from a single goroutine. The returned
// function removes the subscription.
//
// Listeners run while the inference holds the model lock. A listener may read
// model metadata, unsubscribe or submit InferAsync, but it must not call Infer,
// wait on a Future, or Close this Model; each of those blocks on the lock the
// delivering inference holds.
func (m *Model) Subscribe(fn func(Segment)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Model) subscribers() []func(Segment) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	if len(m.subs) == 0 {
		return nil
	}
	out := make([]func(Segment), 0, len(m.subs))
	for _, id := range slices.Sorted(maps.Keys(m.subs)) {
		out = append(out, m.subs[id])
	}
	return out
}

// Close releases the native context. It waits for an in-flight inference and
// succeeds once; every later call returns ErrClosed.
func (m *Model) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nctx != nil {
		m.nctx.Free()
		m.nctx = nil
	}
	m.log.Info("model closed")
	return nil
}
