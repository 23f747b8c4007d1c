package whisper

import (
	"context"
	"slices"

	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
)

// InferOption customises a single inference call.
type InferOption func(*inferConfig)

type inferConfig struct {
	onSegment func(Segment)
	requestID string
	metadata  map[string]string
}

// WithSegmentHandler receives segments of this call only, after model subscribers.
// fn runs while the model lock is held: it must not call Infer, wait on an
// InferAsync future, or Close on the same Model, or the call deadlocks.
func WithSegmentHandler(fn func(Segment)) InferOption {
	return func(c *inferConfig) { c.onSegment = fn }
}

// WithRequestID tags telemetry and logs for the call.
func WithRequestID(id string) InferOption {
	return func(c *inferConfig) { c.requestID = id }
}

// WithMetadata attaches free-form attributes to the call's telemetry.
func WithMetadata(md map[string]string) InferOption {
	return func(c *inferConfig) { c.metadata = md }
}

// Infer transcribes 16 kHz mono samples. Calls on one Model run one at a time;
// a second caller blocks until the first completes. ctx is honoured until the
// native call starts. The native call itself cannot be interrupted.
//
// samples is copied before use, so the caller may reuse it as soon as Infer returns
// or, for InferAsync, as soon as the Future is handed back.
func (m *Model) Infer(ctx context.Context, samples []float32, p Params, opts ...InferOption) (*Result, error) {
	return m.infer(ctx, slices.Clone(samples), p, opts)
}

// InferAsync runs Infer in the background and returns its Future. Once submitted
// the call is not cancellable; ctx expiry only prevents a queued call from starting.
func (m *Model) InferAsync(ctx context.Context, samples []float32, p Params, opts ...InferOption) *Future {
	buf := slices.Clone(samples)
	f := newFuture()
	m.exec.Go(func() {
		f.resolve(m.infer(ctx, buf, p, opts))
	})
	return f
}

func (m *Model) infer(ctx context.Context, samples []float32, p Params, opts []InferOption) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var cfg inferConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics := m.recorder.StartInference(cfg.requestID, len(samples), cfg.metadata)
	res, err := m.inferLocked(ctx, samples, p, cfg, metrics)
	metrics.Finish(err)
	return res, err
}

func (m *Model) inferLocked(ctx context.Context, samples []float32, p Params, cfg inferConfig, metrics *telemetry.InferenceMetrics) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics.RecordLocked()

	if m.nctx == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return emptyResult(p), nil
	}

	if p.SpeedUp {
		m.log.Debug("speed_up is not supported by whisper.cpp and is ignored", "request_id", cfg.requestID)
	}
	r := m.startRelay(cfg.onSegment)
	rc := m.nctx.Full(p.toNative(), samples, r.callback(m.nctx, p))
	r.finish()
	metrics.RecordNativeDone()

	if rc != 0 {
		m.log.Warn("native inference failed", "code", rc, "request_id", cfg.requestID, "emitted", r.emitted)
		return nil, &NativeError{Code: rc}
	}

	res := collectResult(m.nctx, p)
	for _, seg := range res.Segments {
		metrics.RecordSegment(seg.Index, seg.Text)
	}
	return res, nil
}

func emptyResult(p Params) *Result {
	lang := NormaliseLanguage(p.Language)
	if lang == AutoLanguage {
		lang = ""
	}
	return &Result{Segments: []Segment{}, LanguageID: -1, Language: lang}
}
