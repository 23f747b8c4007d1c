package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup and ReadFile to inject deterministic sources.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// fileConfig is the shape shared by the YAML file and the JSON payload.
type fileConfig struct {
	ListenAddr      string `json:"listen_addr" yaml:"listen_addr"`
	ModelVariant    string `json:"model_variant" yaml:"model_variant"`
	ModelPath       string `json:"model_path" yaml:"model_path"`
	DataDir         string `json:"data_dir" yaml:"data_dir"`
	Language        string `json:"language" yaml:"language"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	LogFile         string `json:"log_file" yaml:"log_file"`
	UseStubEngine   *bool  `json:"use_stub_engine" yaml:"use_stub_engine"`
	UseGPU          *bool  `json:"use_gpu" yaml:"use_gpu"`
	FlashAttention  *bool  `json:"flash_attention" yaml:"flash_attention"`
	Threads         *int   `json:"threads" yaml:"threads"`
	BeamSize        *int   `json:"beam_size" yaml:"beam_size"`
	Strategy        string `json:"strategy" yaml:"strategy"`
	InitialPrompt   string `json:"initial_prompt" yaml:"initial_prompt"`
	Translate       *bool  `json:"translate" yaml:"translate"`
	EnableTokens    *bool  `json:"enable_tokens" yaml:"enable_tokens"`
	TokenTimestamps *bool  `json:"token_timestamps" yaml:"token_timestamps"`
	NoContext       *bool  `json:"no_context" yaml:"no_context"`
	SingleSegment   *bool  `json:"single_segment" yaml:"single_segment"`
	AudioCtx        *int   `json:"audio_ctx" yaml:"audio_ctx"`
	SpeedUp         *bool  `json:"speed_up" yaml:"speed_up"`
	ResampleQuality string `json:"resample_quality" yaml:"resample_quality"`
	RelayBuffer     *int   `json:"relay_buffer" yaml:"relay_buffer"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Load retrieves the runtime configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("WHISPER_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := l.applyYAMLFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	if raw, ok := l.Lookup("WHISPER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "WHISPER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "WHISPER_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "WHISPER_LOG_FILE", &cfg.LogFile)
	overrideString(l.Lookup, "WHISPER_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(l.Lookup, "WHISPER_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "WHISPER_DATA_DIR", &cfg.DataDir)
	overrideString(l.Lookup, "WHISPER_LANGUAGE", &cfg.Language)
	overrideString(l.Lookup, "WHISPER_STRATEGY", &cfg.Strategy)
	overrideString(l.Lookup, "WHISPER_INITIAL_PROMPT", &cfg.InitialPrompt)
	overrideString(l.Lookup, "WHISPER_RESAMPLE_QUALITY", &cfg.ResampleQuality)

	var err error
	if cfg.UseStubEngine, err = overrideBool(l.Lookup, "WHISPER_USE_STUB_ENGINE", cfg.UseStubEngine); err != nil {
		return Config{}, err
	}
	if cfg.UseGPU, err = overrideBoolPtr(l.Lookup, "WHISPERCPP_USE_GPU", cfg.UseGPU); err != nil {
		return Config{}, err
	}
	if cfg.FlashAttention, err = overrideBoolPtr(l.Lookup, "WHISPERCPP_FLASH_ATTENTION", cfg.FlashAttention); err != nil {
		return Config{}, err
	}
	if cfg.Threads, err = overrideIntPtr(l.Lookup, "WHISPERCPP_THREADS", cfg.Threads); err != nil {
		return Config{}, err
	}
	if cfg.BeamSize, err = overrideIntPtr(l.Lookup, "WHISPERCPP_BEAM_SIZE", cfg.BeamSize); err != nil {
		return Config{}, err
	}
	if cfg.NoContext, err = overrideBoolPtr(l.Lookup, "WHISPER_NO_CONTEXT", cfg.NoContext); err != nil {
		return Config{}, err
	}
	if cfg.SingleSegment, err = overrideBool(l.Lookup, "WHISPER_SINGLE_SEGMENT", cfg.SingleSegment); err != nil {
		return Config{}, err
	}
	if cfg.SpeedUp, err = overrideBool(l.Lookup, "WHISPER_SPEED_UP", cfg.SpeedUp); err != nil {
		return Config{}, err
	}
	if cfg.AudioCtx, err = overrideInt(l.Lookup, "WHISPER_AUDIO_CTX", cfg.AudioCtx); err != nil {
		return Config{}, err
	}
	// Zero threads means "pick automatically".
	if cfg.Threads != nil && *cfg.Threads == 0 {
		cfg.Threads = nil
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) applyYAMLFile(path string, cfg *Config) error {
	data, err := l.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var payload fileConfig
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return payload.apply(cfg)
}

func applyJSON(raw string, cfg *Config) error {
	var payload fileConfig
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode WHISPER_CONFIG: %w", err)
	}
	return payload.apply(cfg)
}

func (p fileConfig) apply(cfg *Config) error {
	setString(&cfg.ListenAddr, p.ListenAddr)
	setString(&cfg.ModelVariant, p.ModelVariant)
	setString(&cfg.ModelPath, p.ModelPath)
	setString(&cfg.DataDir, p.DataDir)
	setString(&cfg.Language, p.Language)
	setString(&cfg.LogLevel, p.LogLevel)
	setString(&cfg.LogFile, p.LogFile)
	setString(&cfg.Strategy, p.Strategy)
	setString(&cfg.InitialPrompt, p.InitialPrompt)
	setString(&cfg.ResampleQuality, p.ResampleQuality)
	if p.UseStubEngine != nil {
		cfg.UseStubEngine = *p.UseStubEngine
	}
	if p.UseGPU != nil {
		cfg.UseGPU = p.UseGPU
	}
	if p.FlashAttention != nil {
		cfg.FlashAttention = p.FlashAttention
	}
	if p.Threads != nil {
		cfg.Threads = p.Threads
	}
	if p.BeamSize != nil {
		cfg.BeamSize = p.BeamSize
	}
	if p.Translate != nil {
		cfg.Translate = *p.Translate
	}
	if p.EnableTokens != nil {
		cfg.EnableTokens = *p.EnableTokens
	}
	if p.TokenTimestamps != nil {
		cfg.TokenTimestamps = *p.TokenTimestamps
	}
	if p.NoContext != nil {
		cfg.NoContext = p.NoContext
	}
	if p.SingleSegment != nil {
		cfg.SingleSegment = *p.SingleSegment
	}
	if p.AudioCtx != nil {
		cfg.AudioCtx = *p.AudioCtx
	}
	if p.SpeedUp != nil {
		cfg.SpeedUp = *p.SpeedUp
	}
	if p.RelayBuffer != nil {
		cfg.RelayBuffer = *p.RelayBuffer
	}
	if p.ShutdownTimeout != "" {
		d, err := time.ParseDuration(p.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("config: shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func setString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, current bool) (bool, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return current, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return current, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func overrideBoolPtr(lookup func(string) (string, bool), key string, current *bool) (*bool, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return current, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return current, fmt.Errorf("config: %s: %w", key, err)
	}
	return &parsed, nil
}

func overrideInt(lookup func(string) (string, bool), key string, current int) (int, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return current, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return current, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func overrideIntPtr(lookup func(string) (string, bool), key string, current *int) (*int, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return current, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return current, fmt.Errorf("config: %s: %w", key, err)
	}
	return &parsed, nil
}
