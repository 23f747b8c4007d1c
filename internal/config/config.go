package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/audio"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

const (
	// DefaultListenAddr is used when neither the file nor the environment sets an address.
	DefaultListenAddr      = "127.0.0.1:50051"
	DefaultModel           = "base"
	DefaultLanguage        = "en"
	DefaultLogLevel        = "info"
	DefaultDataDir         = "data"
	DefaultStrategy        = "greedy"
	DefaultShutdownTimeout = 5 * time.Second

	// LanguageClient defers the language choice to each request.
	LanguageClient = "client"
)

// Config captures bootstrap configuration read from an optional YAML file
// (`WHISPER_CONFIG_FILE`), an injected JSON payload (`WHISPER_CONFIG`) and
// per-key environment variables, in that order.
type Config struct {
	ListenAddr      string
	ModelVariant    string
	ModelPath       string
	DataDir         string
	Language        string
	LogLevel        string
	LogFile         string
	UseStubEngine   bool
	UseGPU          *bool
	FlashAttention  *bool
	Threads         *int
	BeamSize        *int
	Strategy        string
	InitialPrompt   string
	Translate       bool
	EnableTokens    bool
	TokenTimestamps bool
	NoContext       *bool
	SingleSegment   bool
	AudioCtx        int
	SpeedUp         bool
	ResampleQuality string
	RelayBuffer     int
	ShutdownTimeout time.Duration
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	c.Language = strings.ToLower(c.Language)
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Strategy == "" {
		c.Strategy = DefaultStrategy
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.BeamSize != nil && *c.BeamSize < 1 {
		return fmt.Errorf("config: beam_size must be >= 1, got %d", *c.BeamSize)
	}
	if c.AudioCtx < 0 {
		return fmt.Errorf("config: audio_ctx must be >= 0, got %d", c.AudioCtx)
	}
	if c.RelayBuffer < 0 {
		return fmt.Errorf("config: relay_buffer must be >= 0, got %d", c.RelayBuffer)
	}
	if _, err := whisper.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := audio.ParseQuality(c.ResampleQuality); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DecodeParams builds the inference defaults described by the config. A
// LanguageClient setting maps to auto-detection until a request overrides it.
func (c Config) DecodeParams() (whisper.Params, error) {
	strategy, err := whisper.ParseStrategy(c.Strategy)
	if err != nil {
		return whisper.Params{}, err
	}
	p := whisper.DefaultParams(strategy)
	if c.Language != "" {
		p.Language = c.Language
	}
	if p.Language == LanguageClient {
		p.Language = whisper.AutoLanguage
	}
	if c.Threads != nil && *c.Threads > 0 {
		p.Threads = *c.Threads
	}
	if c.BeamSize != nil {
		p.BeamSize = *c.BeamSize
	}
	p.InitialPrompt = c.InitialPrompt
	p.Translate = c.Translate
	p.EnableTokens = c.EnableTokens
	p.TokenTimestamps = c.TokenTimestamps
	if c.NoContext != nil {
		p.NoContext = *c.NoContext
	}
	p.SingleSegment = c.SingleSegment
	p.AudioCtx = c.AudioCtx
	p.SpeedUp = c.SpeedUp
	return p, p.Validate()
}

// Quality returns the configured resampling kernel.
func (c Config) Quality() audio.Quality {
	q, _ := audio.ParseQuality(c.ResampleQuality)
	return q
}
