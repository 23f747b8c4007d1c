package whisper

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/nupi-ai/whisper-runtime/internal/native"
)

// Strategy selects the decoder.
type Strategy int

const (
	Greedy Strategy = iota
	BeamSearch
)

// ParseStrategy maps "greedy" or "beam" (case-insensitive) to a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "greedy":
		return Greedy, nil
	case "beam", "beam_search", "beamsearch":
		return BeamSearch, nil
	default:
		return Greedy, fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, value)
	}
}

func (s Strategy) String() string {
	switch s {
	case Greedy:
		return "greedy"
	case BeamSearch:
		return "beam"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// AutoLanguage asks the model to detect the spoken language.
const AutoLanguage = "auto"

// Params configures one inference call. It is passed by value and converted to
// the native layout at call time, so a Params can be reused and mutated freely
// between calls.
type Params struct {
	Strategy        Strategy `json:"strategy" yaml:"strategy"`
	Language        string   `json:"language" yaml:"language"`
	Translate       bool     `json:"translate" yaml:"translate"`
	NoContext       bool     `json:"no_context" yaml:"no_context"`
	SingleSegment   bool     `json:"single_segment" yaml:"single_segment"`
	EnableTokens    bool     `json:"enable_tokens" yaml:"enable_tokens"`
	TokenTimestamps bool     `json:"token_timestamps" yaml:"token_timestamps"`
	SpeedUp         bool     `json:"speed_up" yaml:"speed_up"`
	AudioCtx        int      `json:"audio_ctx" yaml:"audio_ctx"`
	InitialPrompt   string   `json:"initial_prompt" yaml:"initial_prompt"`
	Threads         int      `json:"threads" yaml:"threads"`
	BestOf          int      `json:"best_of" yaml:"best_of"`
	BeamSize        int      `json:"beam_size" yaml:"beam_size"`
}

// DefaultParams returns the defaults for strategy: English, no cross-call context,
// five candidates and up to four threads.
func DefaultParams(strategy Strategy) Params {
	p := Params{
		Strategy:  strategy,
		Language:  "en",
		NoContext: true,
		Threads:   defaultThreads(),
	}
	switch strategy {
	case BeamSearch:
		p.BeamSize = 5
	default:
		p.BestOf = 5
	}
	return p
}

// Validate rejects parameter combinations the native library cannot honour.
func (p Params) Validate() error {
	switch {
	case p.Strategy != Greedy && p.Strategy != BeamSearch:
		return fmt.Errorf("%w: unknown strategy %d", ErrInvalidParams, int(p.Strategy))
	case p.AudioCtx < 0:
		return fmt.Errorf("%w: audio_ctx must be >= 0", ErrInvalidParams)
	case p.Threads < 0:
		return fmt.Errorf("%w: threads must be >= 0", ErrInvalidParams)
	case p.BestOf < 0 || p.BeamSize < 0:
		return fmt.Errorf("%w: best_of and beam_size must be >= 0", ErrInvalidParams)
	}
	return nil
}

func (p Params) toNative() native.Params {
	strategy := native.SamplingGreedy
	if p.Strategy == BeamSearch {
		strategy = native.SamplingBeamSearch
	}
	return native.Params{
		Strategy:        strategy,
		Threads:         p.Threads,
		Language:        NormaliseLanguage(p.Language),
		Translate:       p.Translate,
		NoContext:       p.NoContext,
		SingleSegment:   p.SingleSegment,
		TokenTimestamps: p.TokenTimestamps,
		SpeedUp:         p.SpeedUp,
		AudioCtx:        p.AudioCtx,
		InitialPrompt:   p.InitialPrompt,
		BestOf:          p.BestOf,
		BeamSize:        p.BeamSize,
	}
}

// NormaliseLanguage lower-cases an ISO code and maps empty values to AutoLanguage.
func NormaliseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return AutoLanguage
	}
	return lang
}

var defaultThreads = sync.OnceValue(func() int {
	cores, err := cpu.Counts(false)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}
	return min(4, cores)
})
