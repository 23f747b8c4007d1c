package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Recorder tracks runtime-level inference telemetry.
type Recorder struct {
	log *slog.Logger

	totalInferences  atomic.Uint64
	activeInferences atomic.Int64
	failedInferences atomic.Uint64
	totalSamples     atomic.Uint64
	totalSegments    atomic.Uint64
	totalChars       atomic.Uint64
	totalModelLoads  atomic.Uint64
	failedModelLoads atomic.Uint64
	lockWaitNanos    atomic.Int64
	nativeNanos      atomic.Int64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalInferences  uint64
	ActiveInferences int64
	FailedInferences uint64
	TotalSamples     uint64
	TotalSegments    uint64
	TotalChars       uint64
	TotalModelLoads  uint64
	FailedModelLoads uint64
	LockWait         time.Duration
	NativeTime       time.Duration
}

// AudioSeconds converts the sample total into seconds of 16 kHz audio.
func (s Snapshot) AudioSeconds() float64 {
	return float64(s.TotalSamples) / 16000
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalInferences:  r.totalInferences.Load(),
		ActiveInferences: r.activeInferences.Load(),
		FailedInferences: r.failedInferences.Load(),
		TotalSamples:     r.totalSamples.Load(),
		TotalSegments:    r.totalSegments.Load(),
		TotalChars:       r.totalChars.Load(),
		TotalModelLoads:  r.totalModelLoads.Load(),
		FailedModelLoads: r.failedModelLoads.Load(),
		LockWait:         time.Duration(r.lockWaitNanos.Load()),
		NativeTime:       time.Duration(r.nativeNanos.Load()),
	}
}

// RecordModelLoad counts a load attempt.
func (r *Recorder) RecordModelLoad(source string, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.totalModelLoads.Add(1)
	if err != nil {
		r.failedModelLoads.Add(1)
		r.log.Warn("model load failed", "source", source, "duration_ms", took.Milliseconds(), "error", err)
		return
	}
	r.log.Info("model loaded", "source", source, "duration_ms", took.Milliseconds())
}

// InferenceMetrics accumulates statistics for a single inference call.
type InferenceMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	requestID string
	metadata  map[string]string

	started     time.Time
	lockedAt    time.Time
	nativeDone  time.Time
	samples     int
	segments    int
	chars       int
	lastSegment int
	closed      atomic.Bool
}

// StartInference initialises an InferenceMetrics instance bound to the recorder.
func (r *Recorder) StartInference(requestID string, samples int, metadata map[string]string) *InferenceMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)

	inferLogger := r.log.With("request_id", requestID)
	if len(clonedMetadata) > 0 {
		inferLogger = inferLogger.With("metadata", clonedMetadata)
	}

	r.totalInferences.Add(1)
	r.activeInferences.Add(1)
	r.totalSamples.Add(uint64(max(samples, 0)))

	return &InferenceMetrics{
		recorder: r,
		log:      inferLogger,

		requestID: requestID,
		metadata:  clonedMetadata,

		started:     time.Now(),
		samples:     samples,
		lastSegment: -1,
	}
}

// RecordLocked marks the moment the per-model lock was acquired.
func (m *InferenceMetrics) RecordLocked() {
	if m == nil {
		return
	}
	m.lockedAt = time.Now()
	m.recorder.lockWaitNanos.Add(int64(m.lockedAt.Sub(m.started)))
}

// RecordNativeDone marks the return of the native call.
func (m *InferenceMetrics) RecordNativeDone() {
	if m == nil || m.lockedAt.IsZero() {
		return
	}
	m.nativeDone = time.Now()
	m.recorder.nativeNanos.Add(int64(m.nativeDone.Sub(m.lockedAt)))
}

// RecordSegment stores statistics for an emitted segment.
func (m *InferenceMetrics) RecordSegment(index int, text string) {
	if m == nil {
		return
	}
	m.segments++
	m.chars += len(text)
	m.lastSegment = index
	m.recorder.totalSegments.Add(1)
	m.recorder.totalChars.Add(uint64(len(text)))

	m.log.Debug("segment emitted",
		"index", index,
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// Finish logs a summary and updates active inference counters.
func (m *InferenceMetrics) Finish(err error) {
	if m == nil {
		return
	}
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	defer m.recorder.activeInferences.Add(-1)

	duration := time.Since(m.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"samples", m.samples,
		"segments", m.segments,
		"chars", m.chars,
	}
	if !m.lockedAt.IsZero() {
		args = append(args, "lock_wait_ms", m.lockedAt.Sub(m.started).Milliseconds())
	}
	if !m.nativeDone.IsZero() {
		args = append(args, "native_ms", m.nativeDone.Sub(m.lockedAt).Milliseconds())
	}

	if err != nil {
		m.recorder.failedInferences.Add(1)
		m.log.Error("inference completed with error", append(args, "error", err)...)
		return
	}

	m.log.Info("inference completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
