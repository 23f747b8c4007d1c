package telemetry

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if snapshot := recorder.Snapshot(); snapshot.TotalInferences != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	recorder.RecordModelLoad("ggml-base.bin", time.Millisecond, nil)

	infer := recorder.StartInference("req-1", 32000, map[string]string{"source": "test"})
	if infer == nil {
		t.Fatalf("expected inference metrics")
	}
	infer.RecordLocked()
	infer.RecordSegment(0, "hello")
	infer.RecordSegment(1, " world")
	time.Sleep(5 * time.Millisecond)
	infer.RecordNativeDone()
	infer.Finish(nil)

	snapshot := recorder.Snapshot()
	if snapshot.TotalInferences != 1 {
		t.Fatalf("unexpected TotalInferences: %d", snapshot.TotalInferences)
	}
	if snapshot.TotalSegments != 2 {
		t.Fatalf("unexpected TotalSegments: %d", snapshot.TotalSegments)
	}
	if snapshot.TotalChars != 11 {
		t.Fatalf("unexpected TotalChars: %d", snapshot.TotalChars)
	}
	if snapshot.AudioSeconds() != 2 {
		t.Fatalf("unexpected AudioSeconds: %v", snapshot.AudioSeconds())
	}
	if snapshot.TotalModelLoads != 1 || snapshot.FailedModelLoads != 0 {
		t.Fatalf("unexpected model loads: %+v", snapshot)
	}
	if snapshot.NativeTime <= 0 {
		t.Fatalf("expected native time to be recorded")
	}
	if snapshot.ActiveInferences != 0 {
		t.Fatalf("expected zero active inferences, got %d", snapshot.ActiveInferences)
	}

	infer.Finish(nil)
	if snapshot2 := recorder.Snapshot(); snapshot2.TotalInferences != 1 || snapshot2.ActiveInferences != 0 {
		t.Fatalf("snapshot changed unexpectedly: %+v", snapshot2)
	}
}

func TestInferenceFinishWithError(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	recorder.RecordModelLoad("missing.bin", 0, errors.New("not found"))

	infer := recorder.StartInference("req-2", 0, nil)
	infer.Finish(errors.New("native failure"))

	snapshot := recorder.Snapshot()
	if snapshot.FailedInferences != 1 {
		t.Fatalf("expected one failed inference, got %d", snapshot.FailedInferences)
	}
	if snapshot.FailedModelLoads != 1 {
		t.Fatalf("expected one failed load, got %d", snapshot.FailedModelLoads)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *Recorder
	recorder.RecordModelLoad("x", 0, nil)
	infer := recorder.StartInference("req", 1, nil)
	infer.RecordLocked()
	infer.RecordSegment(0, "x")
	infer.RecordNativeDone()
	infer.Finish(nil)
	if snapshot := recorder.Snapshot(); snapshot.TotalInferences != 0 {
		t.Fatalf("expected zero snapshot from nil recorder")
	}
}
