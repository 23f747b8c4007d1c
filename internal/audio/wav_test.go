package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	in := Clip{SampleRate: 22050, Channels: 2, Samples: make([]float32, 22050*2)}
	for i := range in.Samples {
		in.Samples[i] = float32(0.25 * math.Sin(float64(i)/10))
	}
	if err := EncodeWAV(fh, in); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 2 {
		t.Fatalf("unexpected format %d Hz x%d", got.SampleRate, got.Channels)
	}
	if len(got.Samples) != len(in.Samples) {
		t.Fatalf("expected %d samples, got %d", len(in.Samples), len(got.Samples))
	}
	if math.Abs(got.Seconds()-1) > 1e-9 {
		t.Fatalf("expected 1s clip, got %v", got.Seconds())
	}
	for i := 0; i < len(in.Samples); i += 997 {
		if math.Abs(float64(got.Samples[i]-in.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v", i, got.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("definitely not riff data")))
	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}
