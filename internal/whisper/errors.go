package whisper

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad is the parent of every model loading failure.
	ErrModelLoad = errors.New("whisper: model load failed")
	// ErrModelNotFound reports an empty or missing model path.
	ErrModelNotFound = fmt.Errorf("%w: model not found", ErrModelLoad)
	// ErrEmptyBuffer reports a nil or zero-length model buffer.
	ErrEmptyBuffer = fmt.Errorf("%w: model buffer is empty", ErrModelLoad)
	// ErrModelLoadFailed reports that the native initialiser returned no context.
	ErrModelLoadFailed = fmt.Errorf("%w: native initialisation failed", ErrModelLoad)

	ErrAlreadyLoaded  = errors.New("whisper: model already loaded")
	ErrAlreadyLoading = errors.New("whisper: model is loading")
	ErrNotLoaded      = errors.New("whisper: model not loaded")
	// ErrClosed is returned by every call on a closed Model, including a second Close.
	ErrClosed = fmt.Errorf("%w: model closed", ErrNotLoaded)

	ErrNativeInference = errors.New("whisper: native inference failed")
	ErrInvalidParams   = errors.New("whisper: invalid params")
)

// NativeError carries the non-zero return code of whisper_full.
type NativeError struct {
	Code int
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("whisper: native inference failed with code %d", e.Code)
}

func (e *NativeError) Is(target error) bool {
	return target == ErrNativeInference
}
