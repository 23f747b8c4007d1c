package server

import (
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

// InfoRequest is the empty request of Transcriber/Info.
type InfoRequest struct{}

// InfoResponse describes the running runtime and its model.
type InfoResponse struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Backend      string    `json:"backend"`
	ModelVariant string    `json:"model_variant"`
	ModelPath    string    `json:"model_path,omitempty"`
	Loaded       bool      `json:"loaded"`
	Multilingual bool      `json:"multilingual"`
	Languages    []string  `json:"languages,omitempty"`
	Language     string    `json:"language"`
	Stats        Telemetry `json:"stats"`
}

// Telemetry mirrors telemetry.Snapshot on the wire.
type Telemetry struct {
	TotalInferences  uint64        `json:"total_inferences"`
	ActiveInferences int64         `json:"active_inferences"`
	FailedInferences uint64        `json:"failed_inferences"`
	TotalSegments    uint64        `json:"total_segments"`
	AudioSeconds     float64       `json:"audio_seconds"`
	TotalModelLoads  uint64        `json:"total_model_loads"`
	FailedModelLoads uint64        `json:"failed_model_loads"`
	LockWait         time.Duration `json:"lock_wait"`
	NativeTime       time.Duration `json:"native_time"`
}

// TranscribeRequest carries one clip of little-endian signed 16-bit PCM.
type TranscribeRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	Audio      []byte `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	// Channels defaults to 1.
	Channels int `json:"channels,omitempty"`
	// Language only applies when the server is configured to defer to clients.
	Language  string            `json:"language,omitempty"`
	Translate *bool             `json:"translate,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`
	Tokens    *bool             `json:"tokens,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TranscribeResponse is either one streamed segment or, when Final is set, the
// complete result.
type TranscribeResponse struct {
	RequestID string            `json:"request_id"`
	Segment   *whisper.Segment  `json:"segment,omitempty"`
	Final     bool              `json:"final"`
	Result    *whisper.Result   `json:"result,omitempty"`
	Text      string            `json:"text,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
