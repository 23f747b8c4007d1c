package recognizer

import (
	"errors"
	"log/slog"

	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/native"
)

// NewLibrary picks the native backend described by cfg. When the whisper.cpp
// backend is not compiled in it returns the stub together with native.ErrUnavailable
// so callers can decide whether running on the stub is acceptable.
func NewLibrary(cfg config.Config, logger *slog.Logger) (native.Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UseStubEngine {
		logger.Warn("stub backend forced by configuration")
		return native.NewStub(), nil
	}
	lib, err := native.New(native.Options{
		UseGPU:         cfg.UseGPU,
		FlashAttention: cfg.FlashAttention,
	})
	if errors.Is(err, native.ErrUnavailable) {
		logger.Warn("native backend disabled at build time; using stub backend")
		return native.NewStub(), err
	}
	if err != nil {
		return nil, err
	}
	return lib, nil
}
