// Package native is the foreign-function boundary to whisper.cpp.
//
// The real binding is compiled only with the `whispercpp` build tag. Without it,
// New reports ErrUnavailable and callers fall back to the Stub library.
package native

import "errors"

// ErrUnavailable indicates that the whisper.cpp backend was not compiled in.
var ErrUnavailable = errors.New("native: whisper.cpp backend unavailable")

// ErrInitFailed is returned when the native initialiser hands back a null context.
var ErrInitFailed = errors.New("native: context initialisation failed")

// Strategy mirrors whisper_sampling_strategy.
type Strategy int

const (
	SamplingGreedy Strategy = iota
	SamplingBeamSearch
)

// Params is the Go-side snapshot of whisper_full_params. It is converted to the
// native layout on every Full call and never shared with native code.
type Params struct {
	Strategy        Strategy
	Threads         int
	Language        string
	Translate       bool
	NoContext       bool
	SingleSegment   bool
	TokenTimestamps bool
	// SpeedUp is kept for callers built against older whisper.cpp releases;
	// current releases dropped the phase-vocoder path and ignore it.
	SpeedUp       bool
	AudioCtx      int
	InitialPrompt string
	BestOf        int
	BeamSize      int
}

// TokenData mirrors whisper_token_data. Timestamps are in 10 ms ticks.
type TokenData struct {
	ID   int
	P    float32
	PLog float32
	T0   int64
	T1   int64
}

// Options configures context creation. Nil fields keep the whisper.cpp defaults.
type Options struct {
	UseGPU         *bool
	FlashAttention *bool
}

// Library creates native contexts.
type Library interface {
	// InitFromFile loads a model from disk.
	InitFromFile(path string) (Context, error)
	// InitFromBuffer loads a model from memory. Implementations must not retain buf.
	InitFromBuffer(buf []byte) (Context, error)
	// Name identifies the backend in logs.
	Name() string
}

// Context is a loaded model context. Methods other than Free must not be called
// concurrently with Full, except from inside the onNewSegment callback, which runs
// on the goroutine executing Full.
type Context interface {
	// Full runs whisper_full and returns its return code. onNewSegment may be nil.
	Full(p Params, samples []float32, onNewSegment func(nNew int)) int

	NSegments() int
	SegmentText(i int) string
	SegmentT0(i int) int64
	SegmentT1(i int) int64
	NTokens(i int) int
	TokenText(i, j int) string
	TokenData(i, j int) TokenData
	TokenEOT() int
	FullLangID() int
	LangStr(id int) string
	LangMaxID() int
	IsMultilingual() bool

	// Free releases native memory. Callers guarantee it is invoked at most once.
	Free()
}
